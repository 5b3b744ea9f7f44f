package models

import "time"

const (
	AuditAutoLogout     = "AUTO_LOGOUT"
	AuditCapacityChange = "CAPACITY_CHANGE"
)

// AuditEntry records significant transitions. Rows are written once and never
// updated or deleted.
type AuditEntry struct {
	ID          uint      `gorm:"primaryKey"`
	EventID     string    `gorm:"size:36;uniqueIndex;not null"`
	ActorUserID *uint     `gorm:"index"`
	ActorEmail  string    `gorm:"size:255;not null"`
	ActorRole   string    `gorm:"size:16;not null"`
	ActionType  string    `gorm:"size:64;index;not null"`
	TargetID    *uint     `gorm:"index"`
	TargetEmail string    `gorm:"size:255"`
	TargetTeam  string    `gorm:"size:128;index"`
	Metadata    string    `gorm:"size:2048"` // plaintext JSON when no encryption key is configured
	MetadataEnc string    `gorm:"size:4096"` // AES-GCM + base64 of the same JSON
	CreatedAt   time.Time `gorm:"index"`
}
