package model

import (
	"time"

	"gorm.io/gorm"
)

// Technology is a tag describing tooling used on projects and time entries.
// Names are unique within a tenant.
type Technology struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    uint           `json:"tenant_id" gorm:"not null;uniqueIndex:idx_technologies_tenant_name"`
	Name        string         `json:"name" gorm:"type:varchar(100);not null;uniqueIndex:idx_technologies_tenant_name"`
	Category    string         `json:"category,omitempty" gorm:"type:varchar(50)"`
	Version     string         `json:"version,omitempty" gorm:"type:varchar(50)"`
	Description string         `json:"description,omitempty" gorm:"type:text"`
	Color       string         `json:"color,omitempty" gorm:"type:varchar(20)"`
	Active      bool           `json:"active" gorm:"default:true"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// ProjectTechnology links a technology to a project
type ProjectTechnology struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ProjectID    uint      `json:"project_id" gorm:"not null;uniqueIndex:idx_project_technologies_pair"`
	TechnologyID uint      `json:"technology_id" gorm:"not null;uniqueIndex:idx_project_technologies_pair"`
	CreatedAt    time.Time `json:"created_at"`
}

// TimeEntryTechnology links a technology to a time entry
type TimeEntryTechnology struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	TimeEntryID  uint      `json:"time_entry_id" gorm:"not null;uniqueIndex:idx_time_entry_technologies_pair"`
	TechnologyID uint      `json:"technology_id" gorm:"not null;uniqueIndex:idx_time_entry_technologies_pair"`
	CreatedAt    time.Time `json:"created_at"`
}
