package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"breaktopia/internal/store"
)

func recv(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-s.C:
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func expectNone(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case ev := <-s.C:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFanout_TopicRouting(t *testing.T) {
	f := NewFanout(nil)
	defer f.Close()

	team1 := f.Subscribe(8, BroadcastTopic, UserTopic(1), TeamTopic(1))
	team2 := f.Subscribe(8, BroadcastTopic, UserTopic(2), TeamTopic(2))
	admin := f.Subscribe(8, BroadcastTopic, UserTopic(3), GlobalTopic)

	f.PublishTeam(1, Event{Type: EventStatus})
	if ev := recv(t, team1); ev.Type != EventStatus {
		t.Errorf("team1 got %s", ev.Type)
	}
	expectNone(t, team2)
	expectNone(t, admin)

	f.PublishGlobal(Event{Type: EventCapacity})
	if ev := recv(t, admin); ev.Type != EventCapacity {
		t.Errorf("admin got %s", ev.Type)
	}
	expectNone(t, team1)

	f.PublishUser(2, Event{Type: EventForceLogout})
	if ev := recv(t, team2); ev.Type != EventForceLogout {
		t.Errorf("user 2 got %s", ev.Type)
	}
	expectNone(t, team1)

	f.PublishAll(Event{Type: EventOnlinePresence})
	for _, s := range []*Subscription{team1, team2, admin} {
		if ev := recv(t, s); ev.Type != EventOnlinePresence {
			t.Errorf("broadcast got %s", ev.Type)
		}
	}
}

func TestFanout_Unsubscribe(t *testing.T) {
	f := NewFanout(nil)
	defer f.Close()

	s := f.Subscribe(1, BroadcastTopic)
	f.Unsubscribe(s)

	select {
	case _, ok := <-s.C:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after Unsubscribe")
	}
	// publishing after unsubscribe must not panic
	f.PublishAll(Event{Type: EventOnlinePresence})
}

type memPublisher struct {
	mu   sync.Mutex
	subj []string
	data [][]byte
	err  error
}

func (p *memPublisher) Publish(subj string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subj = append(p.subj, subj)
	p.data = append(p.data, data)
	return p.err
}

func TestNATSRelay(t *testing.T) {
	pub := &memPublisher{}
	f := NewFanout(NewNATSRelay(pub, "breaktopia.events", nil))
	defer f.Close()

	f.PublishTeam(4, Event{Type: EventPresenceOnline, Payload: presencePayload{UserID: 9}})
	pub.err = errors.New("not connected")
	f.PublishAll(Event{Type: EventOnlinePresence})

	if len(pub.subj) != 2 || pub.subj[0] != "breaktopia.events.team.4" || pub.subj[1] != "breaktopia.events.broadcast" {
		t.Fatalf("subjects = %v", pub.subj)
	}
	var env struct {
		Topic string `json:"topic"`
		Event struct {
			Type    string `json:"type"`
			Payload struct {
				UserID uint `json:"userId"`
			} `json:"payload"`
		} `json:"event"`
	}
	if err := json.Unmarshal(pub.data[0], &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Topic != "team.4" || env.Event.Type != EventPresenceOnline || env.Event.Payload.UserID != 9 {
		t.Errorf("envelope = %+v", env)
	}
}

type fakeSources struct {
	rows map[uint][]store.StatusRow
	caps map[uint]store.CapacitySnapshot
}

func (s *fakeSources) Snapshot(_ context.Context, teamID *uint) ([]store.StatusRow, error) {
	if teamID == nil {
		var all []store.StatusRow
		for _, r := range s.rows {
			all = append(all, r...)
		}
		return all, nil
	}
	return s.rows[*teamID], nil
}

func (s *fakeSources) Capacity(_ context.Context, teamID uint) (store.CapacitySnapshot, error) {
	c, ok := s.caps[teamID]
	if !ok {
		return c, store.ErrTeamNotFound
	}
	return c, nil
}

func (s *fakeSources) AllCapacities(context.Context) ([]store.CapacitySnapshot, error) {
	return []store.CapacitySnapshot{s.caps[1], s.caps[2]}, nil
}

func (s *fakeSources) TeamIDs(context.Context) ([]uint, error) { return []uint{1, 2}, nil }

func TestNotifier_TeamUpdate(t *testing.T) {
	src := &fakeSources{
		rows: map[uint][]store.StatusRow{
			1: {{ID: 10, Status: "break"}},
			2: {{ID: 20, Status: "working"}},
		},
		caps: map[uint]store.CapacitySnapshot{
			1: {TeamID: 1, BreakCapacity: 2, OnBreakNow: 1},
			2: {TeamID: 2, BreakCapacity: 3},
		},
	}
	f := NewFanout(nil)
	defer f.Close()
	n := NewNotifier(f, src, src, func() []uint { return []uint{10} }, nil)

	team1 := f.Subscribe(16, BroadcastTopic, TeamTopic(1))
	admin := f.Subscribe(16, BroadcastTopic, GlobalTopic)

	n.TeamUpdate(context.Background())

	ev := recv(t, team1)
	rows, ok := ev.Payload.([]store.StatusRow)
	if ev.Type != EventStatus || !ok || len(rows) != 1 || rows[0].ID != 10 {
		t.Errorf("team status event = %+v", ev)
	}
	// clients receive the row array itself, not a wrapper object
	if b, _ := json.Marshal(ev); !bytes.HasPrefix(b, []byte(`{"type":"status","payload":[{`)) {
		t.Errorf("status frame = %s", b)
	}
	ev = recv(t, team1)
	if c, ok := ev.Payload.(store.CapacitySnapshot); ev.Type != EventCapacity || !ok || c.OnBreakNow != 1 {
		t.Errorf("team capacity event = %+v", ev)
	}
	if ev = recv(t, team1); ev.Type != EventOnlinePresence {
		t.Errorf("team1 third event = %s", ev.Type)
	}

	ev = recv(t, admin)
	if rows, ok := ev.Payload.([]store.StatusRow); ev.Type != EventStatus || !ok || len(rows) != 2 {
		t.Errorf("global status event = %+v", ev)
	}
	ev = recv(t, admin)
	if all, ok := ev.Payload.([]store.CapacitySnapshot); ev.Type != EventCapacity || !ok || len(all) != 2 {
		t.Errorf("global capacity event = %+v", ev)
	}
	ev = recv(t, admin)
	if p, ok := ev.Payload.(onlinePayload); ev.Type != EventOnlinePresence || !ok || len(p.OnlineUserIDs) != 1 {
		t.Errorf("online event = %+v", ev)
	}
}

func TestNotifier_Presence(t *testing.T) {
	f := NewFanout(nil)
	defer f.Close()
	n := NewNotifier(f, &fakeSources{}, &fakeSources{}, nil, nil)

	team := f.Subscribe(4, TeamTopic(5))
	admin := f.Subscribe(4, GlobalTopic)
	self := f.Subscribe(4, UserTopic(7))

	teamID := uint(5)
	n.PresenceOffline(7, &teamID, "leave")
	for _, s := range []*Subscription{team, admin} {
		ev := recv(t, s)
		p, _ := ev.Payload.(presencePayload)
		if ev.Type != EventPresenceOffline || p.UserID != 7 || p.Reason != "leave" {
			t.Errorf("event = %+v", ev)
		}
	}

	// a user without a team is only visible globally
	n.PresenceOnline(8, nil)
	if ev := recv(t, admin); ev.Type != EventPresenceOnline {
		t.Errorf("admin got %s", ev.Type)
	}
	expectNone(t, team)

	n.ForceLogout(7)
	if ev := recv(t, self); ev.Type != EventForceLogout {
		t.Errorf("self got %s", ev.Type)
	}
}
