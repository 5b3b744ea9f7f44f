package models

import "time"

const (
	StatusWorking = "working"
	StatusBreak   = "break"
	StatusOffline = "offline"

	// StatusExtendedBreak is a display-only state; it is never persisted.
	StatusExtendedBreak = "extended_break"
)

// StatusRecord is the current status of one user. A missing row reads as offline.
type StatusRecord struct {
	UserID          uint      `gorm:"primaryKey"`
	Status          string    `gorm:"size:16;index;not null"`
	StatusChangedAt time.Time `gorm:"not null"`
	UpdatedAt       time.Time

	User User `gorm:"constraint:OnDelete:CASCADE"`
}

func (StatusRecord) TableName() string {
	return "status"
}

func ValidStatus(s string) bool {
	switch s {
	case StatusWorking, StatusBreak, StatusOffline:
		return true
	}
	return false
}
