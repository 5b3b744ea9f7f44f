package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"breaktopia/internal/models"

	"gorm.io/gorm"
)

// BreakLog is the append-only log of break sessions. Its write methods take the
// caller's transaction so that session changes commit together with the status row.
type BreakLog struct {
	db *gorm.DB
}

func NewBreakLog(db *gorm.DB) *BreakLog {
	return &BreakLog{db: db}
}

func (l *BreakLog) open(tx *gorm.DB, userID uint, at time.Time) (*models.BreakSession, error) {
	s := models.BreakSession{UserID: userID, StartedAt: at}
	if err := tx.Create(&s).Error; err != nil {
		return nil, fmt.Errorf("open break session: %w", err)
	}
	return &s, nil
}

// closeOpen ends the user's open session, if any, and returns it. A nil
// session means nothing was open.
func (l *BreakLog) closeOpen(tx *gorm.DB, userID uint, at time.Time) (*models.BreakSession, error) {
	var s models.BreakSession
	err := tx.Where("user_id = ? AND ended_at IS NULL", userID).
		Order("started_at DESC").
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open break session: %w", err)
	}

	// close every dangling row, not only the newest one
	if err := tx.Model(&models.BreakSession{}).
		Where("user_id = ? AND ended_at IS NULL", userID).
		Update("ended_at", at).Error; err != nil {
		return nil, fmt.Errorf("close break session: %w", err)
	}
	s.EndedAt = &at
	return &s, nil
}

// OpenSession returns the user's open session or nil.
func (l *BreakLog) OpenSession(ctx context.Context, userID uint) (*models.BreakSession, error) {
	var s models.BreakSession
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND ended_at IS NULL", userID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open break session: %w", err)
	}
	return &s, nil
}

// countOpenForTeam counts open sessions of approved members of a team.
func countOpenForTeam(tx *gorm.DB, teamID uint) (int, error) {
	var n int64
	err := tx.Model(&models.BreakSession{}).
		Joins("JOIN users ON users.id = break_sessions.user_id").
		Where("users.team_id = ? AND users.approval_status = ? AND break_sessions.ended_at IS NULL",
			teamID, models.ApprovalApproved).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count open break sessions: %w", err)
	}
	return int(n), nil
}

// SessionView is one break session as returned to clients.
type SessionView struct {
	ID              uint       `json:"id"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt"`
	DurationSeconds int64      `json:"durationSeconds"`
}

// BreakHistory summarizes a user's recent breaks. Days are UTC dates and the
// week starts on Monday. Open sessions count up to now.
type BreakHistory struct {
	Sessions    []SessionView    `json:"sessions"`
	ByDay       map[string]int64 `json:"byDay"`
	WeeklyTotal int64            `json:"weeklyTotal"`
}

// History returns sessions that started within the last days days (or are still open).
func (l *BreakLog) History(ctx context.Context, userID uint, days int, now time.Time) (*BreakHistory, error) {
	if days <= 0 {
		days = 7
	}
	since := startOfDay(now).AddDate(0, 0, -(days - 1))

	var rows []models.BreakSession
	if err := l.db.WithContext(ctx).
		Where("user_id = ? AND (started_at >= ? OR ended_at IS NULL)", userID, since).
		Order("started_at").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list break sessions: %w", err)
	}

	h := &BreakHistory{
		Sessions: make([]SessionView, 0, len(rows)),
		ByDay:    make(map[string]int64),
	}
	weekStart := startOfWeek(now)
	for i := range rows {
		s := &rows[i]
		sec := int64(s.Duration(now) / time.Second)
		h.Sessions = append(h.Sessions, SessionView{
			ID:              s.ID,
			StartedAt:       s.StartedAt,
			EndedAt:         s.EndedAt,
			DurationSeconds: sec,
		})
		h.ByDay[s.StartedAt.UTC().Format("2006-01-02")] += sec
		if !s.StartedAt.Before(weekStart) {
			h.WeeklyTotal += sec
		}
	}
	sort.Slice(h.Sessions, func(i, j int) bool {
		return h.Sessions[i].StartedAt.Before(h.Sessions[j].StartedAt)
	})
	return h, nil
}

// completedToday sums, per user, the part of each closed session that falls on
// the UTC day containing now.
func completedToday(tx *gorm.DB, userIDs []uint, now time.Time) (map[uint]int64, error) {
	out := make(map[uint]int64, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	dayStart := startOfDay(now)
	dayEnd := dayStart.Add(24 * time.Hour)

	var rows []models.BreakSession
	if err := tx.Where("user_id IN ? AND ended_at IS NOT NULL AND ended_at >= ?", userIDs, dayStart).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list completed break sessions: %w", err)
	}
	for _, s := range rows {
		start, end := s.StartedAt, *s.EndedAt
		if start.Before(dayStart) {
			start = dayStart
		}
		if end.After(dayEnd) {
			end = dayEnd
		}
		if end.After(start) {
			out[s.UserID] += int64(end.Sub(start) / time.Second)
		}
	}
	return out, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfWeek(t time.Time) time.Time {
	d := startOfDay(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return d.AddDate(0, 0, -offset)
}
