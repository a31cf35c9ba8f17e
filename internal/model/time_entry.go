package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TimeEntry records worked time against a project. An entry with no end time
// and IsRunning set is a live timer; at most one per user per tenant, enforced
// by a partial unique index on (tenant_id, user_id) where is_running.
type TimeEntry struct {
	ID              uint             `json:"id" gorm:"primaryKey"`
	TenantID        uint             `json:"tenant_id" gorm:"not null;index"`
	UserID          uint             `json:"user_id" gorm:"not null;index"`
	ProjectID       uint             `json:"project_id" gorm:"not null;index"`
	Description     string           `json:"description,omitempty" gorm:"type:text"`
	StartTime       time.Time        `json:"start_time" gorm:"not null;index"`
	EndTime         *time.Time       `json:"end_time,omitempty"`
	DurationMinutes *int             `json:"duration_minutes,omitempty"`
	Billable        bool             `json:"billable" gorm:"default:true"`
	HourlyRate      *decimal.Decimal `json:"hourly_rate,omitempty" gorm:"type:decimal(10,2)"`
	Amount          *decimal.Decimal `json:"amount,omitempty" gorm:"type:decimal(12,2)"`
	IsRunning       bool             `json:"is_running" gorm:"default:false"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	DeletedAt       gorm.DeletedAt   `json:"-" gorm:"index"`
}

// Recompute derives duration and amount from the entry's times and rate.
// Duration is the elapsed time rounded to whole minutes; amount is
// hourly_rate x duration / 60. Both are cleared while the entry is open.
func (e *TimeEntry) Recompute() {
	if e.EndTime == nil {
		e.DurationMinutes = nil
		e.Amount = nil
		return
	}

	minutes := int(math.Round(e.EndTime.Sub(e.StartTime).Minutes()))
	e.DurationMinutes = &minutes

	if e.HourlyRate == nil {
		e.Amount = nil
		return
	}

	amount := e.HourlyRate.
		Mul(decimal.NewFromInt(int64(minutes))).
		Div(decimal.NewFromInt(60)).
		Round(2)
	e.Amount = &amount
}
