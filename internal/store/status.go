package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"breaktopia/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const autoLogoutReason = "user left application"

// StatusStore owns the per-user status rows and keeps them consistent with the
// break session log: status == break exactly when an open session exists.
type StatusStore struct {
	db            *gorm.DB
	breaks        *BreakLog
	gate          *CapacityGate
	audit         *AuditLog
	extendedAfter time.Duration
	now           func() time.Time
}

func NewStatusStore(db *gorm.DB, breaks *BreakLog, gate *CapacityGate, audit *AuditLog, extendedAfter time.Duration) *StatusStore {
	return &StatusStore{
		db:            db,
		breaks:        breaks,
		gate:          gate,
		audit:         audit,
		extendedAfter: extendedAfter,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// currentStatus returns the status row; ok is false when the user has none.
func currentStatus(tx *gorm.DB, userID uint) (models.StatusRecord, bool, error) {
	var rec models.StatusRecord
	err := tx.Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.StatusRecord{UserID: userID, Status: models.StatusOffline}, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("load status: %w", err)
	}
	return rec, true, nil
}

func writeStatus(tx *gorm.DB, userID uint, status string, at time.Time) (models.StatusRecord, error) {
	rec := models.StatusRecord{UserID: userID, Status: status, StatusChangedAt: at, UpdatedAt: at}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "status_changed_at", "updated_at"}),
	}).Omit("User").Create(&rec).Error; err != nil {
		return rec, fmt.Errorf("save status: %w", err)
	}
	return rec, nil
}

// Status returns the current status; a user without a row reads as offline.
func (s *StatusStore) Status(ctx context.Context, userID uint) (models.StatusRecord, error) {
	rec, _, err := currentStatus(s.db.WithContext(ctx), userID)
	return rec, err
}

// SetStatus moves the user to newStatus. Entering break is subject to the
// team's capacity and fails with *CapacityFullError when the team is full.
// Asking for the current status changes nothing.
func (s *StatusStore) SetStatus(ctx context.Context, user *models.User, newStatus string) (models.StatusRecord, error) {
	if !models.ValidStatus(newStatus) {
		return models.StatusRecord{}, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	gated := newStatus == models.StatusBreak && user.TeamID != nil
	if gated {
		unlock := s.gate.lockTeam(*user.TeamID)
		defer unlock()
	}

	var out models.StatusRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, exists, err := currentStatus(tx, user.ID)
		if err != nil {
			return err
		}
		if exists && cur.Status == newStatus {
			out = cur
			return nil
		}

		now := s.now()
		if newStatus == models.StatusBreak {
			if gated {
				if err := s.gate.admit(tx, *user.TeamID); err != nil {
					return err
				}
			}
			// a stale open row would break the one-open-session rule
			if _, err := s.breaks.closeOpen(tx, user.ID, now); err != nil {
				return err
			}
			if _, err := s.breaks.open(tx, user.ID, now); err != nil {
				return err
			}
		} else if _, err := s.breaks.closeOpen(tx, user.ID, now); err != nil {
			return err
		}

		out, err = writeStatus(tx, user.ID, newStatus, now)
		return err
	})
	if err != nil {
		return models.StatusRecord{}, err
	}
	return out, nil
}

// RecoverOnline sets working for a user whose status is offline or missing.
// It reports whether anything changed.
func (s *StatusStore) RecoverOnline(ctx context.Context, userID uint) (bool, error) {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, exists, err := currentStatus(tx, userID)
		if err != nil {
			return err
		}
		if exists && cur.Status != models.StatusOffline {
			return nil
		}
		if _, err := writeStatus(tx, userID, models.StatusWorking, s.now()); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

// AutoLogoutResult describes what an auto-logout changed.
type AutoLogoutResult struct {
	User            models.User
	PreviousStatus  string
	SessionClosed   bool
	DurationSeconds *int64
	At              time.Time
}

// AutoLogout ends the user's break if one is open, forces offline, revokes all
// tokens issued so far and writes one AUTO_LOGOUT audit entry. Everything
// commits in one transaction.
func (s *StatusStore) AutoLogout(ctx context.Context, userID uint) (AutoLogoutResult, error) {
	var res AutoLogoutResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Preload("Team").First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load user: %w", err)
		}
		now := s.now()

		cur, exists, err := currentStatus(tx, userID)
		if err != nil {
			return err
		}

		sess, err := s.breaks.closeOpen(tx, userID, now)
		if err != nil {
			return err
		}
		var dur *int64
		if sess != nil {
			d := int64(sess.Duration(now) / time.Second)
			dur = &d
		}

		if !exists || cur.Status != models.StatusOffline {
			if _, err := writeStatus(tx, userID, models.StatusOffline, now); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			UpdateColumns(map[string]any{
				"tokens_invalid_before": now,
				"last_seen_at":          now,
			}).Error; err != nil {
			return fmt.Errorf("advance token watermark: %w", err)
		}
		user.TokensInvalidBefore = &now
		user.LastSeenAt = &now

		teamName := ""
		if user.Team != nil {
			teamName = user.Team.Name
		}
		var durMeta any
		if dur != nil {
			durMeta = *dur
		}
		if err := s.audit.Record(tx, AuditEvent{
			Actor:      &user,
			Action:     models.AuditAutoLogout,
			Target:     &user,
			TargetTeam: teamName,
			Metadata: map[string]any{
				"reason":               autoLogoutReason,
				"pauseAutoClosed":      sess != nil,
				"pauseDurationSeconds": durMeta,
			},
		}); err != nil {
			return err
		}

		res = AutoLogoutResult{
			User:            user,
			PreviousStatus:  cur.Status,
			SessionClosed:   sess != nil,
			DurationSeconds: dur,
			At:              now,
		}
		return nil
	})
	return res, err
}

// RecoveryResult counts what startup recovery repaired.
type RecoveryResult struct {
	ClosedSessions int64
	OfflinedUsers  int64
	At             time.Time
}

// RecoverOnStartup closes every open session and forces every non-offline
// status to offline, both stamped with the restart time. Liveness is not
// persisted, so nobody is known to be online after a restart.
func (s *StatusStore) RecoverOnStartup(ctx context.Context) (RecoveryResult, error) {
	res := RecoveryResult{At: s.now()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := tx.Model(&models.BreakSession{}).
			Where("ended_at IS NULL").
			Update("ended_at", res.At)
		if r.Error != nil {
			return fmt.Errorf("close open sessions: %w", r.Error)
		}
		res.ClosedSessions = r.RowsAffected

		r = tx.Model(&models.StatusRecord{}).
			Where("status <> ?", models.StatusOffline).
			Updates(map[string]any{
				"status":            models.StatusOffline,
				"status_changed_at": res.At,
				"updated_at":        res.At,
			})
		if r.Error != nil {
			return fmt.Errorf("reset statuses: %w", r.Error)
		}
		res.OfflinedUsers = r.RowsAffected
		return nil
	})
	return res, err
}

// TouchLastSeen persists the time of the user's latest heartbeat.
func (s *StatusStore) TouchLastSeen(ctx context.Context, userID uint, at time.Time) error {
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_seen_at", at.UTC()).Error; err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	return nil
}

// StatusRow is one user's line in a team status table.
type StatusRow struct {
	ID                         uint       `json:"id"`
	FirstName                  string     `json:"firstName"`
	LastName                   string     `json:"lastName"`
	Email                      string     `json:"email"`
	Role                       string     `json:"role"`
	TeamID                     *uint      `json:"teamId"`
	TeamName                   string     `json:"teamName"`
	Status                     string     `json:"status"`
	StatusChangedAt            *time.Time `json:"statusChangedAt"`
	LastSeenAt                 *time.Time `json:"lastSeenAt"`
	ElapsedSeconds             int64      `json:"elapsedSeconds"`
	DailyCompletedPauseSeconds int64      `json:"dailyCompletedPauseSeconds"`
}

type statusJoin struct {
	ID              uint
	FirstName       string
	LastName        string
	Email           string
	Role            string
	TeamID          *uint
	TeamName        *string
	Status          *string
	StatusChangedAt *time.Time
	LastSeenAt      *time.Time
}

// Snapshot lists approved users of one team, or of every team when teamID is
// nil. A break longer than the configured threshold is shown as extended_break.
func (s *StatusStore) Snapshot(ctx context.Context, teamID *uint) ([]StatusRow, error) {
	tx := s.db.WithContext(ctx)

	q := tx.Table("users").
		Select("users.id, users.first_name, users.last_name, users.email, users.role, users.team_id, " +
			"teams.name AS team_name, status.status, status.status_changed_at, users.last_seen_at").
		Joins("LEFT JOIN teams ON teams.id = users.team_id").
		Joins("LEFT JOIN status ON status.user_id = users.id").
		Where("users.approval_status = ?", models.ApprovalApproved)
	if teamID != nil {
		q = q.Where("users.team_id = ?", *teamID)
	}

	var rows []statusJoin
	if err := q.Order("users.last_name, users.first_name, users.id").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load status snapshot: %w", err)
	}

	now := s.now()
	ids := make([]uint, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	done, err := completedToday(tx, ids, now)
	if err != nil {
		return nil, err
	}

	out := make([]StatusRow, 0, len(rows))
	for _, r := range rows {
		row := StatusRow{
			ID:                         r.ID,
			FirstName:                  r.FirstName,
			LastName:                   r.LastName,
			Email:                      r.Email,
			Role:                       r.Role,
			TeamID:                     r.TeamID,
			Status:                     models.StatusOffline,
			StatusChangedAt:            r.StatusChangedAt,
			LastSeenAt:                 r.LastSeenAt,
			DailyCompletedPauseSeconds: done[r.ID],
		}
		if r.TeamName != nil {
			row.TeamName = *r.TeamName
		}
		if r.Status != nil {
			row.Status = *r.Status
		}
		if row.Status != models.StatusOffline && r.StatusChangedAt != nil {
			if el := now.Sub(*r.StatusChangedAt); el > 0 {
				row.ElapsedSeconds = int64(el / time.Second)
			}
		}
		if row.Status == models.StatusBreak && s.extendedAfter > 0 &&
			row.ElapsedSeconds >= int64(s.extendedAfter/time.Second) {
			row.Status = models.StatusExtendedBreak
		}
		out = append(out, row)
	}
	return out, nil
}

// BreakHistory returns the user's break sessions for the last days days.
func (s *StatusStore) BreakHistory(ctx context.Context, userID uint, days int) (*BreakHistory, error) {
	return s.breaks.History(ctx, userID, days, s.now())
}
