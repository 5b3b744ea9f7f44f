package models

import "time"

// Team groups users that share a break capacity.
type Team struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:128;not null"`
	Code      string `gorm:"size:64;uniqueIndex"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TeamCapacity is the number of concurrently open break sessions a team allows.
type TeamCapacity struct {
	TeamID        uint `gorm:"primaryKey"`
	BreakCapacity int  `gorm:"not null"`
	UpdatedAt     time.Time

	Team Team `gorm:"constraint:OnDelete:CASCADE"`
}
