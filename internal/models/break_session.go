package models

import "time"

// BreakSession is one break interval. EndedAt == nil means the break is still open;
// at most one open session exists per user.
type BreakSession struct {
	ID        uint       `gorm:"primaryKey"`
	UserID    uint       `gorm:"not null;index:idx_break_sessions_user_started,priority:1;index:idx_break_sessions_user_open,priority:1"`
	StartedAt time.Time  `gorm:"not null;index:idx_break_sessions_user_started,priority:2;index"`
	EndedAt   *time.Time `gorm:"index:idx_break_sessions_user_open,priority:2"`

	User User `gorm:"constraint:OnDelete:CASCADE"`
}

func (s *BreakSession) Open() bool {
	return s.EndedAt == nil
}

// Duration returns the elapsed break time, measured up to now for open sessions.
func (s *BreakSession) Duration(now time.Time) time.Duration {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}
