package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant represents the tenant model stored in the database
// This is the core of our multi-tenant architecture
type Tenant struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	Name          string         `json:"name" gorm:"type:varchar(100);uniqueIndex"`
	Domain        string         `json:"domain,omitempty" gorm:"type:varchar(100)"`
	Settings      string         `json:"settings,omitempty" gorm:"type:jsonb"`
	Active        bool           `json:"active" gorm:"default:true"`
	DeactivatedAt *time.Time     `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}
