package presence

import (
	"sort"
	"sync"
	"time"
)

type entry struct {
	lastSeen     time.Time
	pendingLeave bool
}

// Tracker is the in-memory liveness table. It is never persisted; after a
// restart every user starts absent.
type Tracker struct {
	mu      sync.Mutex
	entries map[uint]*entry
	now     func() time.Time
}

// NewTracker returns an empty tracker. A nil clock means time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		entries: make(map[uint]*entry),
		now:     now,
	}
}

// Heartbeat records that the user is alive and cancels a pending leave.
// recovered is true when the user was absent or had a pending leave.
func (t *Tracker) Heartbeat(userID uint) (recovered bool, at time.Time) {
	prev, at := t.refresh(userID)
	return prev == nil || prev.pendingLeave, at
}

// refresh replaces the user's entry with a fresh one and returns the entry it
// replaced, nil when the user was absent.
func (t *Tracker) refresh(userID uint) (prev *entry, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	at = t.now()
	prev = t.entries[userID]
	t.entries[userID] = &entry{lastSeen: at}
	return prev, at
}

// restore undoes refresh. A nil prev removes the user again.
func (t *Tracker) restore(userID uint, prev *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev == nil {
		delete(t.entries, userID)
		return
	}
	t.entries[userID] = prev
}

// MarkTentativeLeave flags a possible departure. lastSeen is left alone so the
// grace period counts from the last real heartbeat.
func (t *Tracker) MarkTentativeLeave(userID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[userID]; ok {
		e.pendingLeave = true
		return
	}
	t.entries[userID] = &entry{lastSeen: t.now(), pendingLeave: true}
}

// IsOnline reports whether the user was seen within ttl.
func (t *Tracker) IsOnline(userID uint, ttl time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[userID]
	return ok && !e.lastSeen.Before(t.now().Add(-ttl))
}

// ListOnline returns the ids seen within ttl in ascending order.
func (t *Tracker) ListOnline(ttl time.Duration) []uint {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-ttl)
	ids := make([]uint, 0, len(t.entries))
	for id, e := range t.entries {
		if !e.lastSeen.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *Tracker) Remove(userID uint) {
	t.mu.Lock()
	delete(t.entries, userID)
	t.mu.Unlock()
}

func (t *Tracker) PendingLeave(userID uint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[userID]
	return ok && e.pendingLeave
}

// Expired returns users with a pending leave whose last heartbeat is more
// than grace ago.
func (t *Tracker) Expired(grace time.Duration) []uint {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var ids []uint
	for id, e := range t.entries {
		if e.pendingLeave && now.Sub(e.lastSeen) > grace {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *Tracker) expired(userID uint, grace time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[userID]
	return ok && e.pendingLeave && t.now().Sub(e.lastSeen) > grace
}

// Len is the number of tracked users.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
