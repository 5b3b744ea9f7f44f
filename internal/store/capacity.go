package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"breaktopia/internal/models"
	"breaktopia/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CapacitySnapshot is the quota and current usage of one team.
type CapacitySnapshot struct {
	TeamID        uint   `json:"teamId"`
	TeamName      string `json:"teamName"`
	BreakCapacity int    `json:"breakCapacity"`
	OnBreakNow    int    `json:"onBreakNow"`
	IsActive      bool   `json:"isActive"`
}

// CapacityGate decides whether a team member may start a break.
//
// Admission holds a per-team lock across "count open sessions" and "insert
// session" so two break requests for the same team cannot both pass the
// check on this instance.
type CapacityGate struct {
	db              *gorm.DB
	defaultCapacity int
	audit           *AuditLog

	mu    sync.Mutex
	teams map[uint]*sync.Mutex
}

func NewCapacityGate(db *gorm.DB, defaultCapacity int, audit *AuditLog) *CapacityGate {
	return &CapacityGate{
		db:              db,
		defaultCapacity: defaultCapacity,
		audit:           audit,
		teams:           make(map[uint]*sync.Mutex),
	}
}

// lockTeam serializes admission for one team and returns the unlock func.
func (g *CapacityGate) lockTeam(teamID uint) func() {
	g.mu.Lock()
	m, ok := g.teams[teamID]
	if !ok {
		m = &sync.Mutex{}
		g.teams[teamID] = m
	}
	g.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (g *CapacityGate) quota(tx *gorm.DB, teamID uint) (int, error) {
	var row models.TeamCapacity
	err := tx.Where("team_id = ?", teamID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return g.defaultCapacity, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load team capacity: %w", err)
	}
	return row.BreakCapacity, nil
}

// admit returns a *CapacityFullError when the team is at its quota. It must
// run inside the transaction that opens the session, with the team lock held.
func (g *CapacityGate) admit(tx *gorm.DB, teamID uint) error {
	quota, err := g.quota(tx, teamID)
	if err != nil {
		return err
	}
	open, err := countOpenForTeam(tx, teamID)
	if err != nil {
		return err
	}
	if open >= quota {
		return &CapacityFullError{TeamID: teamID, OnBreakNow: open, BreakCapacity: quota}
	}
	return nil
}

// CanStartBreak reports whether one more member of the team could start a break now.
func (g *CapacityGate) CanStartBreak(ctx context.Context, teamID uint) (bool, CapacitySnapshot, error) {
	snap, err := g.Capacity(ctx, teamID)
	if err != nil {
		return false, snap, err
	}
	return snap.OnBreakNow < snap.BreakCapacity, snap, nil
}

// Capacity returns the snapshot for one team.
func (g *CapacityGate) Capacity(ctx context.Context, teamID uint) (CapacitySnapshot, error) {
	tx := g.db.WithContext(ctx)

	var team models.Team
	if err := tx.First(&team, teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CapacitySnapshot{}, ErrTeamNotFound
		}
		return CapacitySnapshot{}, fmt.Errorf("load team: %w", err)
	}
	return g.snapshot(tx, &team)
}

func (g *CapacityGate) snapshot(tx *gorm.DB, team *models.Team) (CapacitySnapshot, error) {
	quota, err := g.quota(tx, team.ID)
	if err != nil {
		return CapacitySnapshot{}, err
	}
	open, err := countOpenForTeam(tx, team.ID)
	if err != nil {
		return CapacitySnapshot{}, err
	}
	return CapacitySnapshot{
		TeamID:        team.ID,
		TeamName:      team.Name,
		BreakCapacity: quota,
		OnBreakNow:    open,
		IsActive:      team.IsActive,
	}, nil
}

// AllCapacities returns a snapshot per active team, ordered by name.
func (g *CapacityGate) AllCapacities(ctx context.Context) ([]CapacitySnapshot, error) {
	tx := g.db.WithContext(ctx)

	var teams []models.Team
	if err := tx.Where("is_active = ?", true).Order("name").Find(&teams).Error; err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	out := make([]CapacitySnapshot, 0, len(teams))
	for i := range teams {
		snap, err := g.snapshot(tx, &teams[i])
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// TeamIDs lists all team ids, active or not.
func (g *CapacityGate) TeamIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := g.db.WithContext(ctx).Model(&models.Team{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list team ids: %w", err)
	}
	return ids, nil
}

// SetCapacity changes a team's quota and records who changed it. Lowering the
// quota below the current usage does not end any open break.
func (g *CapacityGate) SetCapacity(ctx context.Context, actor *models.User, teamID uint, capacity int) (CapacitySnapshot, error) {
	if err := util.ValidateBreakCapacity(capacity); err != nil {
		return CapacitySnapshot{}, fmt.Errorf("%w: %v", ErrInvalidCapacity, err)
	}

	unlock := g.lockTeam(teamID)
	defer unlock()

	var snap CapacitySnapshot
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var team models.Team
		if err := tx.First(&team, teamID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTeamNotFound
			}
			return fmt.Errorf("load team: %w", err)
		}

		old, err := g.quota(tx, teamID)
		if err != nil {
			return err
		}

		row := models.TeamCapacity{TeamID: teamID, BreakCapacity: capacity, UpdatedAt: time.Now().UTC()}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "team_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"break_capacity", "updated_at"}),
		}).Omit("Team").Create(&row).Error; err != nil {
			return fmt.Errorf("save team capacity: %w", err)
		}

		if g.audit != nil && actor != nil {
			if err := g.audit.Record(tx, AuditEvent{
				Actor:      actor,
				Action:     models.AuditCapacityChange,
				TargetTeam: team.Name,
				Metadata: map[string]any{
					"teamId":           team.ID,
					"oldBreakCapacity": old,
					"newBreakCapacity": capacity,
				},
			}); err != nil {
				return err
			}
		}

		snap, err = g.snapshot(tx, &team)
		return err
	})
	if err != nil {
		return CapacitySnapshot{}, err
	}
	return snap, nil
}
