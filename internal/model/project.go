package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Project lifecycle statuses
const (
	ProjectStatusActive    = "active"
	ProjectStatusCompleted = "completed"
	ProjectStatusOnHold    = "on_hold"
	ProjectStatusCancelled = "cancelled"
)

// ValidProjectStatus reports whether status is one of the known lifecycle values
func ValidProjectStatus(status string) bool {
	switch status {
	case ProjectStatusActive, ProjectStatusCompleted, ProjectStatusOnHold, ProjectStatusCancelled:
		return true
	}
	return false
}

// Project represents billable work for a client. Project names are unique
// per client within a tenant.
type Project struct {
	ID          uint             `json:"id" gorm:"primaryKey"`
	TenantID    uint             `json:"tenant_id" gorm:"not null;uniqueIndex:idx_projects_tenant_client_name"`
	ClientID    uint             `json:"client_id" gorm:"not null;uniqueIndex:idx_projects_tenant_client_name"`
	Name        string           `json:"name" gorm:"type:varchar(200);not null;uniqueIndex:idx_projects_tenant_client_name"`
	Description string           `json:"description,omitempty" gorm:"type:text"`
	Status      string           `json:"status" gorm:"type:varchar(20);default:active"`
	StartDate   *time.Time       `json:"start_date,omitempty"`
	EndDate     *time.Time       `json:"end_date,omitempty"`
	Budget      *decimal.Decimal `json:"budget,omitempty" gorm:"type:decimal(12,2)"`
	HourlyRate  *decimal.Decimal `json:"hourly_rate,omitempty" gorm:"type:decimal(10,2)"`
	Active      bool             `json:"active" gorm:"default:true"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	DeletedAt   gorm.DeletedAt   `json:"-" gorm:"index"`
}
