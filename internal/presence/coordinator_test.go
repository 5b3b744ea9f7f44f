package presence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"breaktopia/internal/models"
	"breaktopia/internal/store"
)

type fakeStore struct {
	mu          sync.Mutex
	status      map[uint]string
	lastSeen    map[uint]time.Time
	autoLogouts []uint
	teams       map[uint]*uint
	failLogout  error
	failRecover int // RecoverOnline fails this many more times
	failTouch   int // TouchLastSeen fails this many more times
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		status:   make(map[uint]string),
		lastSeen: make(map[uint]time.Time),
		teams:    make(map[uint]*uint),
	}
}

func (s *fakeStore) TouchLastSeen(_ context.Context, userID uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTouch > 0 {
		s.failTouch--
		return errors.New("database is locked")
	}
	s.lastSeen[userID] = at
	return nil
}

func (s *fakeStore) RecoverOnline(_ context.Context, userID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRecover > 0 {
		s.failRecover--
		return false, errors.New("database is locked")
	}
	if st, ok := s.status[userID]; ok && st != models.StatusOffline {
		return false, nil
	}
	s.status[userID] = models.StatusWorking
	return true, nil
}

func (s *fakeStore) AutoLogout(_ context.Context, userID uint) (store.AutoLogoutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLogout != nil {
		return store.AutoLogoutResult{}, s.failLogout
	}
	prev := s.status[userID]
	s.status[userID] = models.StatusOffline
	s.autoLogouts = append(s.autoLogouts, userID)
	return store.AutoLogoutResult{
		User:           models.User{ID: userID, TeamID: s.teams[userID]},
		PreviousStatus: prev,
		SessionClosed:  prev == models.StatusBreak,
	}, nil
}

func (s *fakeStore) logouts() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint(nil), s.autoLogouts...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) add(format string, args ...any) {
	n.mu.Lock()
	n.events = append(n.events, fmt.Sprintf(format, args...))
	n.mu.Unlock()
}

func (n *recordingNotifier) TeamUpdate(context.Context) { n.add("team") }
func (n *recordingNotifier) PresenceOnline(userID uint, _ *uint) {
	n.add("online:%d", userID)
}
func (n *recordingNotifier) PresenceOffline(userID uint, _ *uint, reason string) {
	n.add("offline:%d:%s", userID, reason)
}
func (n *recordingNotifier) OnlineSnapshot(ids []uint) { n.add("snapshot:%v", ids) }
func (n *recordingNotifier) ForceLogout(userID uint)   { n.add("force:%d", userID) }

func (n *recordingNotifier) take() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.events
	n.events = nil
	return out
}

type fakeConns map[uint]int

func (f fakeConns) Count(userID uint) int { return f[userID] }

type harness struct {
	clk    *fakeClock
	store  *fakeStore
	notify *recordingNotifier
	conns  fakeConns
	coord  *Coordinator
	sup    *Supervisor
}

func newHarness() *harness {
	clk := newFakeClock()
	h := &harness{
		clk:    clk,
		store:  newFakeStore(),
		notify: &recordingNotifier{},
		conns:  fakeConns{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.coord = NewCoordinator(NewTracker(clk.Now), h.store, h.notify, h.conns, Options{
		OnlineTTL:   45 * time.Second,
		GracePeriod: 30 * time.Second,
		Logger:      logger,
	})
	h.sup = NewSupervisor(h.coord, 10*time.Second, logger)
	return h
}

func user(id uint) *models.User {
	team := uint(1)
	return &models.User{ID: id, TeamID: &team}
}

func TestHeartbeat_FirstPingRestoresWorking(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.coord.Heartbeat(ctx, user(1)); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if got := h.notify.take(); !reflect.DeepEqual(got, []string{"team", "online:1"}) {
		t.Errorf("events = %v", got)
	}
	if h.store.status[1] != models.StatusWorking {
		t.Errorf("status = %q, want working", h.store.status[1])
	}
	if !h.store.lastSeen[1].Equal(h.clk.Now()) {
		t.Errorf("last seen = %v", h.store.lastSeen[1])
	}

	// steady heartbeats are silent
	h.clk.Advance(5 * time.Second)
	h.coord.Heartbeat(ctx, user(1))
	if got := h.notify.take(); len(got) != 0 {
		t.Errorf("events = %v, want none", got)
	}
}

func TestHeartbeat_KeepsBreakOnRecovery(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.store.status[1] = models.StatusBreak

	h.coord.Heartbeat(ctx, user(1))
	if got := h.notify.take(); !reflect.DeepEqual(got, []string{"online:1"}) {
		t.Errorf("events = %v", got)
	}
	if h.store.status[1] != models.StatusBreak {
		t.Errorf("status = %q, want break", h.store.status[1])
	}
}

// Heartbeats stop without a leave: the user drops out of the online set but
// is never auto-logged out.
func TestSilentDisappearance(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.coord.Heartbeat(ctx, user(1))
	h.notify.take()

	h.clk.Advance(46 * time.Second)
	if h.coord.IsOnline(1) {
		t.Error("user should not be online after ttl")
	}
	if n := h.sup.Sweep(ctx); n != 0 {
		t.Errorf("Sweep logged out %d users", n)
	}
	if got := h.notify.take(); !reflect.DeepEqual(got, []string{"snapshot:[]"}) {
		t.Errorf("events = %v", got)
	}
	if h.store.status[1] != models.StatusWorking {
		t.Errorf("status = %q, want working", h.store.status[1])
	}
}

// Leave followed by silence: auto-logout after the grace period, in order.
func TestLeaveThenGraceExpiry(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.coord.Heartbeat(ctx, user(1))
	h.store.status[1] = models.StatusBreak
	h.notify.take()

	h.clk.Advance(time.Second)
	h.coord.Leave(ctx, 1)

	h.clk.Advance(28 * time.Second)
	if n := h.sup.Sweep(ctx); n != 0 {
		t.Fatalf("logged out %d users before grace", n)
	}
	h.notify.take()

	h.clk.Advance(2 * time.Second) // 31s after the last heartbeat
	if n := h.sup.Sweep(ctx); n != 1 {
		t.Fatalf("Sweep logged out %d users, want 1", n)
	}
	want := []string{"offline:1:auto_logout", "team", "force:1", "snapshot:[]"}
	if got := h.notify.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if h.store.status[1] != models.StatusOffline {
		t.Errorf("status = %q", h.store.status[1])
	}
	if h.coord.tracker.Len() != 0 {
		t.Error("entry should be removed after auto-logout")
	}
}

// A heartbeat within the grace period cancels the leave.
func TestLeaveCancelledByHeartbeat(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.coord.Heartbeat(ctx, user(1))
	h.notify.take()

	h.coord.Leave(ctx, 1)
	h.clk.Advance(3 * time.Second)
	h.coord.Heartbeat(ctx, user(1))
	if got := h.notify.take(); !reflect.DeepEqual(got, []string{"online:1"}) {
		t.Errorf("events = %v", got)
	}

	h.clk.Advance(40 * time.Second)
	if n := h.sup.Sweep(ctx); n != 0 {
		t.Errorf("cancelled leave still logged out %d", n)
	}
	if len(h.store.logouts()) != 0 {
		t.Errorf("store auto-logouts = %v", h.store.logouts())
	}
}

func TestAutoLogout_Idempotent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.coord.Leave(ctx, 1)
	h.clk.Advance(31 * time.Second)

	ok, err := h.coord.AutoLogout(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("first AutoLogout = %v, %v", ok, err)
	}
	ok, err = h.coord.AutoLogout(ctx, 1)
	if err != nil || ok {
		t.Fatalf("second AutoLogout = %v, %v; want no-op", ok, err)
	}
	if got := h.store.logouts(); !reflect.DeepEqual(got, []uint{1}) {
		t.Errorf("store auto-logouts = %v", got)
	}
}

func TestAutoLogout_NotEligible(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.coord.Heartbeat(ctx, user(1))
	h.clk.Advance(time.Hour)

	if ok, _ := h.coord.AutoLogout(ctx, 1); ok {
		t.Error("user without a pending leave must not be logged out")
	}
	if ok, _ := h.coord.AutoLogout(ctx, 2); ok {
		t.Error("unknown user must not be logged out")
	}
}

func TestAutoLogout_StoreFailureRetries(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.coord.Leave(ctx, 1)
	h.clk.Advance(31 * time.Second)

	h.store.failLogout = errors.New("disk full")
	if n := h.sup.Sweep(ctx); n != 0 {
		t.Fatalf("Sweep = %d", n)
	}
	if !h.coord.tracker.PendingLeave(1) {
		t.Fatal("entry must survive a failed auto-logout")
	}

	h.store.failLogout = nil
	if n := h.sup.Sweep(ctx); n != 1 {
		t.Errorf("retry Sweep = %d, want 1", n)
	}
}

func TestAutoLogout_UnknownUserDropsEntry(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.coord.Leave(ctx, 9)
	h.clk.Advance(31 * time.Second)
	h.store.failLogout = store.ErrUserNotFound

	ok, err := h.coord.AutoLogout(ctx, 9)
	if ok || err != nil {
		t.Fatalf("AutoLogout = %v, %v", ok, err)
	}
	if h.coord.tracker.Len() != 0 {
		t.Error("entry for unknown user should be dropped")
	}
}

// Closing one of two tabs never reports the user offline.
func TestDisconnected_MultiTab(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.coord.Heartbeat(ctx, user(1))
	h.notify.take()

	h.coord.Leave(ctx, 1)
	h.conns[1] = 1
	h.coord.Disconnected(ctx, user(1))
	if got := h.notify.take(); len(got) != 0 {
		t.Errorf("events with a tab still open = %v", got)
	}

	h.conns[1] = 0
	h.coord.Disconnected(ctx, user(1))
	if got := h.notify.take(); !reflect.DeepEqual(got, []string{"offline:1:leave"}) {
		t.Errorf("events = %v", got)
	}
	// advisory only: status untouched until the grace period runs out
	if h.store.status[1] != models.StatusWorking {
		t.Errorf("status = %q", h.store.status[1])
	}
}

func TestDisconnected_WithoutLeave(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.coord.Heartbeat(ctx, user(1))
	h.notify.take()

	h.coord.Disconnected(ctx, user(1))
	if got := h.notify.take(); len(got) != 0 {
		t.Errorf("events = %v, want none", got)
	}
}

func TestHeartbeatAndAutoLogoutRace(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.coord.Leave(ctx, 1)
	h.clk.Advance(31 * time.Second)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.coord.Heartbeat(ctx, user(1))
	}()
	go func() {
		defer wg.Done()
		h.coord.AutoLogout(ctx, 1)
	}()
	wg.Wait()

	// whichever ran first, the other observes a consistent state
	logouts := len(h.store.logouts())
	tracked := h.coord.tracker.Len()
	switch {
	case logouts == 1 && tracked == 1 && !h.coord.tracker.PendingLeave(1):
		// logged out, then a fresh heartbeat brought the user back
	case logouts == 0 && tracked == 1 && !h.coord.tracker.PendingLeave(1):
		// heartbeat cancelled the leave first
	default:
		t.Errorf("inconsistent state: logouts=%d tracked=%d", logouts, tracked)
	}
}

func TestSupervisorRunStopsOnCancel(t *testing.T) {
	h := newHarness()
	sup := NewSupervisor(h.coord, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHeartbeat_FailedRecoveryIsRetried(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.store.status[7] = models.StatusOffline
	h.store.failRecover = 1

	if err := h.coord.Heartbeat(ctx, user(7)); err == nil {
		t.Fatal("first heartbeat should report the store failure")
	}
	if h.coord.IsOnline(7) {
		t.Error("user listed online although recovery failed")
	}
	if got := h.notify.take(); len(got) != 0 {
		t.Errorf("events after failed recovery = %v", got)
	}

	h.clk.Advance(5 * time.Second)
	if err := h.coord.Heartbeat(ctx, user(7)); err != nil {
		t.Fatalf("second heartbeat: %v", err)
	}
	if got := h.store.status[7]; got != models.StatusWorking {
		t.Errorf("status = %s, want working", got)
	}
	if got, want := h.notify.take(), []string{"team", "online:7"}; !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(h.coord.Online(), []uint{7}) {
		t.Errorf("Online = %v", h.coord.Online())
	}
}

func TestHeartbeat_FailedRecoveryKeepsPendingLeave(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.coord.Heartbeat(ctx, user(7)); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	h.coord.Leave(ctx, 7)
	h.notify.take()

	// the cancelling heartbeat fails before anything is persisted
	h.clk.Advance(5 * time.Second)
	h.store.failTouch = 1
	if err := h.coord.Heartbeat(ctx, user(7)); err == nil {
		t.Fatal("heartbeat should report the store failure")
	}
	if !h.coord.tracker.PendingLeave(7) {
		t.Fatal("failed heartbeat cancelled the pending leave")
	}

	h.clk.Advance(5 * time.Second)
	if err := h.coord.Heartbeat(ctx, user(7)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if h.coord.tracker.PendingLeave(7) {
		t.Error("pending leave survived a successful heartbeat")
	}
	if got, want := h.notify.take(), []string{"online:7"}; !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}
