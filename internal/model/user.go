package model

import (
	"time"

	"gorm.io/gorm"
)

// User roles within a tenant
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User represents the user model stored in the database.
// Every user belongs to exactly one tenant; email is unique per tenant.
type User struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	TenantID      uint           `json:"tenant_id" gorm:"not null;uniqueIndex:idx_users_tenant_email"`
	Email         string         `json:"email" gorm:"type:varchar(100);not null;uniqueIndex:idx_users_tenant_email"`
	Password      string         `json:"-" gorm:"type:varchar(255)"`
	FirstName     string         `json:"first_name" gorm:"type:varchar(100)"`
	LastName      string         `json:"last_name" gorm:"type:varchar(100)"`
	Role          string         `json:"role" gorm:"type:varchar(20);default:user"`
	Active        bool           `json:"active" gorm:"default:true"`
	LastLogin     *time.Time     `json:"last_login,omitempty"`
	DeactivatedAt *time.Time     `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsAdmin reports whether the user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
