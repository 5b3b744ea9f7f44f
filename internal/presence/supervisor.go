package presence

import (
	"context"
	"log/slog"
	"time"
)

// Supervisor periodically auto-logs out users whose leave was never cancelled
// and publishes the online set.
type Supervisor struct {
	coord    *Coordinator
	interval time.Duration
	log      *slog.Logger
}

func NewSupervisor(coord *Coordinator, interval time.Duration, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{coord: coord, interval: interval, log: logger}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("presence supervisor started", "interval", s.interval, "grace", s.coord.grace)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("presence supervisor stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns how many users were logged out. A failure
// for one user is logged and retried on the next pass.
func (s *Supervisor) Sweep(ctx context.Context) int {
	start := time.Now()
	n := 0
	for _, id := range s.coord.tracker.Expired(s.coord.grace) {
		ok, err := s.coord.AutoLogout(ctx, id)
		if err != nil {
			s.log.Error("auto-logout failed", "user", id, "error", err)
			continue
		}
		if ok {
			n++
		}
	}
	s.coord.notify.OnlineSnapshot(s.coord.Online())
	s.coord.metrics.sweep(ctx, time.Since(start), n)
	return n
}
