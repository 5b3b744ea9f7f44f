package models

import "time"

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"

	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// User represents an application user. Registration and approval are managed
// elsewhere; this service only reads identity, team and role, and advances
// the token watermark.
type User struct {
	ID             uint   `gorm:"primaryKey"`
	Email          string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash   string `gorm:"size:255;not null"`
	FirstName      string `gorm:"size:64;not null"`
	LastName       string `gorm:"size:64;not null"`
	Role           string `gorm:"size:16;index;not null;default:user"`
	TeamID         *uint  `gorm:"index"`
	ApprovalStatus string `gorm:"size:16;index;not null;default:pending"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	TokensInvalidBefore *time.Time // tokens issued before this instant are rejected
	LastSeenAt          *time.Time // refreshed on every heartbeat

	Team *Team `gorm:"constraint:OnDelete:SET NULL"`
}

func (u *User) IsApproved() bool {
	return u.ApprovalStatus == ApprovalApproved
}

func (u *User) IsSuperAdmin() bool {
	return u.Role == RoleSuperAdmin
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
