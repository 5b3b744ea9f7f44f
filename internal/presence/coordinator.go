package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"breaktopia/internal/models"
	"breaktopia/internal/store"
)

// Reasons carried by presenceOffline events.
const (
	ReasonLeave      = "leave"
	ReasonAutoLogout = "auto_logout"
)

// StatusStore is the persistence the coordinator drives.
type StatusStore interface {
	TouchLastSeen(ctx context.Context, userID uint, at time.Time) error
	RecoverOnline(ctx context.Context, userID uint) (bool, error)
	AutoLogout(ctx context.Context, userID uint) (store.AutoLogoutResult, error)
}

// Notifier pushes presence and status changes to observers.
type Notifier interface {
	TeamUpdate(ctx context.Context)
	PresenceOnline(userID uint, teamID *uint)
	PresenceOffline(userID uint, teamID *uint, reason string)
	OnlineSnapshot(userIDs []uint)
	ForceLogout(userID uint)
}

// ConnCounter reports how many push connections a user has open.
type ConnCounter interface {
	Count(userID uint) int
}

type Options struct {
	OnlineTTL   time.Duration
	GracePeriod time.Duration
	Logger      *slog.Logger
}

// Coordinator ties liveness signals to status changes. Heartbeat and
// AutoLogout for the same user never run concurrently.
type Coordinator struct {
	tracker *Tracker
	store   StatusStore
	notify  Notifier
	conns   ConnCounter
	ttl     time.Duration
	grace   time.Duration
	log     *slog.Logger
	metrics *metrics

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func NewCoordinator(tracker *Tracker, st StatusStore, notify Notifier, conns ConnCounter, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		tracker: tracker,
		store:   st,
		notify:  notify,
		conns:   conns,
		ttl:     opts.OnlineTTL,
		grace:   opts.GracePeriod,
		log:     logger,
		metrics: newMetrics(),
		locks:   make(map[uint]*sync.Mutex),
	}
}

func (c *Coordinator) lockUser(userID uint) func() {
	c.mu.Lock()
	m, ok := c.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		c.locks[userID] = m
	}
	c.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Heartbeat refreshes the user's liveness. A user coming back from absence or
// from a pending leave is restored to working if they were offline, and
// observers get presenceOnline.
func (c *Coordinator) Heartbeat(ctx context.Context, user *models.User) error {
	unlock := c.lockUser(user.ID)
	defer unlock()

	prev, at := c.tracker.refresh(user.ID)
	recovered := prev == nil || prev.pendingLeave
	c.metrics.heartbeat(ctx, recovered)

	// A recovery that fails half way is rolled back so the next heartbeat
	// is treated as a recovery again.
	if err := c.store.TouchLastSeen(ctx, user.ID, at); err != nil {
		if recovered {
			c.tracker.restore(user.ID, prev)
		}
		return err
	}
	if !recovered {
		return nil
	}

	changed, err := c.store.RecoverOnline(ctx, user.ID)
	if err != nil {
		c.tracker.restore(user.ID, prev)
		return fmt.Errorf("recover online: %w", err)
	}
	if changed {
		c.log.Info("user back online", "user", user.ID)
		c.notify.TeamUpdate(ctx)
	}
	c.notify.PresenceOnline(user.ID, user.TeamID)
	return nil
}

// Leave records a tentative departure. Nothing is persisted or published.
func (c *Coordinator) Leave(ctx context.Context, userID uint) {
	unlock := c.lockUser(userID)
	defer unlock()

	c.tracker.MarkTentativeLeave(userID)
	c.metrics.leave(ctx)
}

// Disconnected is called after a push connection closed. When the user has
// no connection left and a leave is pending, observers are told right away;
// the authoritative logout still waits for the grace period.
func (c *Coordinator) Disconnected(ctx context.Context, user *models.User) {
	if !c.tracker.PendingLeave(user.ID) {
		return
	}
	if c.conns != nil && c.conns.Count(user.ID) > 0 {
		return
	}
	c.notify.PresenceOffline(user.ID, user.TeamID, ReasonLeave)
}

// AutoLogout logs out a user whose pending leave outlived the grace period.
// It returns false without doing anything when the user is not, or no
// longer, eligible, which makes repeated calls harmless.
func (c *Coordinator) AutoLogout(ctx context.Context, userID uint) (bool, error) {
	unlock := c.lockUser(userID)
	defer unlock()

	if !c.tracker.expired(userID, c.grace) {
		return false, nil
	}

	res, err := c.store.AutoLogout(ctx, userID)
	if errors.Is(err, store.ErrUserNotFound) {
		c.tracker.Remove(userID)
		c.log.Warn("auto-logout for unknown user, dropping presence entry", "user", userID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("auto-logout user %d: %w", userID, err)
	}

	c.notify.PresenceOffline(userID, res.User.TeamID, ReasonAutoLogout)
	c.tracker.Remove(userID)
	c.notify.TeamUpdate(ctx)
	c.notify.ForceLogout(userID)

	c.metrics.autoLogout(ctx, res.SessionClosed)
	attrs := []any{"user", userID, "previous", res.PreviousStatus, "break_closed", res.SessionClosed}
	if res.DurationSeconds != nil {
		attrs = append(attrs, "break_seconds", *res.DurationSeconds)
	}
	c.log.Info("auto-logout", attrs...)
	return true, nil
}

// Online returns the ids seen within the online TTL.
func (c *Coordinator) Online() []uint {
	return c.tracker.ListOnline(c.ttl)
}

func (c *Coordinator) IsOnline(userID uint) bool {
	return c.tracker.IsOnline(userID, c.ttl)
}

func (c *Coordinator) TTL() time.Duration {
	return c.ttl
}

// Forget drops the user's liveness entry, e.g. on explicit logout.
func (c *Coordinator) Forget(userID uint) {
	unlock := c.lockUser(userID)
	defer unlock()
	c.tracker.Remove(userID)
}
