package database

import (
	"fmt"

	"breaktopia/internal/models"

	"gorm.io/gorm"
)

// AutoMigrate runs database schema migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Team{},
		&models.User{},
		&models.StatusRecord{},
		&models.BreakSession{},
		&models.TeamCapacity{},
		&models.AuditEntry{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// partial index backing the open-session lookup
	if err := db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_break_sessions_open ON break_sessions(user_id) WHERE ended_at IS NULL",
	).Error; err != nil {
		return fmt.Errorf("create open session index: %w", err)
	}
	return nil
}

// SeedCapacities gives every team without a capacity row the default quota.
func SeedCapacities(db *gorm.DB, defaultCapacity int) error {
	var teamIDs []uint
	if err := db.Model(&models.Team{}).
		Where("id NOT IN (?)", db.Model(&models.TeamCapacity{}).Select("team_id")).
		Pluck("id", &teamIDs).Error; err != nil {
		return fmt.Errorf("list teams without capacity: %w", err)
	}
	for _, id := range teamIDs {
		row := models.TeamCapacity{TeamID: id, BreakCapacity: defaultCapacity}
		if err := db.Omit("Team").Create(&row).Error; err != nil {
			return fmt.Errorf("seed capacity for team %d: %w", id, err)
		}
	}
	return nil
}
