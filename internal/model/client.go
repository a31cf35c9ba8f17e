package model

import (
	"time"

	"gorm.io/gorm"
)

// Client represents a customer of the tenant that projects are billed to.
// Client names are unique within a tenant.
type Client struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	TenantID      uint           `json:"tenant_id" gorm:"not null;uniqueIndex:idx_clients_tenant_name"`
	Name          string         `json:"name" gorm:"type:varchar(200);not null;uniqueIndex:idx_clients_tenant_name"`
	ContactEmail  string         `json:"contact_email,omitempty" gorm:"type:varchar(100)"`
	ContactPhone  string         `json:"contact_phone,omitempty" gorm:"type:varchar(50)"`
	Address       string         `json:"address,omitempty" gorm:"type:text"`
	Active        bool           `json:"active" gorm:"default:true"`
	DeactivatedAt *time.Time     `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}
