package model

import (
	"time"

	"gorm.io/gorm"
)

// Invitation statuses
const (
	InvitationStatusPending  = "pending"
	InvitationStatusAccepted = "accepted"
	InvitationStatusExpired  = "expired"
	InvitationStatusRevoked  = "revoked"
)

// Invitation lets an admin bring a new user into the tenant. The token is a
// signed JWT carrying the invited email, tenant and role.
type Invitation struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    uint           `json:"tenant_id" gorm:"not null;index"`
	Email       string         `json:"email" gorm:"type:varchar(100);not null"`
	Role        string         `json:"role" gorm:"type:varchar(20);default:user"`
	Token       string         `json:"-" gorm:"type:varchar(512);uniqueIndex"`
	Status      string         `json:"status" gorm:"type:varchar(20);default:pending"`
	Message     string         `json:"message,omitempty" gorm:"type:text"`
	InvitedByID uint           `json:"invited_by_id"`
	ExpiresAt   time.Time      `json:"expires_at"`
	AcceptedAt  *time.Time     `json:"accepted_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}
