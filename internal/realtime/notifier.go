package realtime

import (
	"context"
	"log/slog"

	"breaktopia/internal/store"
)

// StatusSource provides status tables.
type StatusSource interface {
	Snapshot(ctx context.Context, teamID *uint) ([]store.StatusRow, error)
}

// CapacitySource provides capacity snapshots.
type CapacitySource interface {
	Capacity(ctx context.Context, teamID uint) (store.CapacitySnapshot, error)
	AllCapacities(ctx context.Context) ([]store.CapacitySnapshot, error)
	TeamIDs(ctx context.Context) ([]uint, error)
}

// Notifier turns state changes into events on the fanout.
type Notifier struct {
	fanout   *Fanout
	statuses StatusSource
	caps     CapacitySource
	online   func() []uint
	log      *slog.Logger
}

func NewNotifier(fanout *Fanout, statuses StatusSource, caps CapacitySource, online func() []uint, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		fanout:   fanout,
		statuses: statuses,
		caps:     caps,
		online:   online,
		log:      logger,
	}
}

// SetOnlineSource replaces the function that lists online users.
func (n *Notifier) SetOnlineSource(online func() []uint) {
	n.online = online
}

type presencePayload struct {
	UserID uint   `json:"userId"`
	TeamID *uint  `json:"teamId"`
	Reason string `json:"reason,omitempty"`
}

type onlinePayload struct {
	OnlineUserIDs []uint `json:"onlineUserIds"`
}

// TeamUpdate republishes every team's status table and capacity, the
// aggregate for superadmins, and the online set.
func (n *Notifier) TeamUpdate(ctx context.Context) {
	ids, err := n.caps.TeamIDs(ctx)
	if err != nil {
		n.log.Error("team update: list teams", "error", err)
		return
	}
	for _, id := range ids {
		n.publishTeam(ctx, id)
	}
	n.publishGlobal(ctx)

	if n.online != nil {
		n.OnlineSnapshot(n.online())
	}
}

// CapacityUpdate republishes one team's capacity to its members and the
// aggregate to superadmins.
func (n *Notifier) CapacityUpdate(ctx context.Context, teamID uint) {
	snap, err := n.caps.Capacity(ctx, teamID)
	if err != nil {
		n.log.Error("capacity update", "team", teamID, "error", err)
		return
	}
	n.fanout.PublishTeam(teamID, Event{Type: EventCapacity, Payload: snap})

	all, err := n.caps.AllCapacities(ctx)
	if err != nil {
		n.log.Error("capacity update: all teams", "error", err)
		return
	}
	n.fanout.PublishGlobal(Event{Type: EventCapacity, Payload: all})
}

func (n *Notifier) publishTeam(ctx context.Context, teamID uint) {
	rows, err := n.statuses.Snapshot(ctx, &teamID)
	if err != nil {
		n.log.Error("team update: status snapshot", "team", teamID, "error", err)
		return
	}
	n.fanout.PublishTeam(teamID, Event{Type: EventStatus, Payload: rows})

	snap, err := n.caps.Capacity(ctx, teamID)
	if err != nil {
		n.log.Error("team update: capacity", "team", teamID, "error", err)
		return
	}
	n.fanout.PublishTeam(teamID, Event{Type: EventCapacity, Payload: snap})
}

func (n *Notifier) publishGlobal(ctx context.Context) {
	rows, err := n.statuses.Snapshot(ctx, nil)
	if err != nil {
		n.log.Error("team update: global status snapshot", "error", err)
		return
	}
	n.fanout.PublishGlobal(Event{Type: EventStatus, Payload: rows})

	all, err := n.caps.AllCapacities(ctx)
	if err != nil {
		n.log.Error("team update: all capacities", "error", err)
		return
	}
	n.fanout.PublishGlobal(Event{Type: EventCapacity, Payload: all})
}

func (n *Notifier) PresenceOnline(userID uint, teamID *uint) {
	n.publishPresence(EventPresenceOnline, presencePayload{UserID: userID, TeamID: teamID})
}

func (n *Notifier) PresenceOffline(userID uint, teamID *uint, reason string) {
	n.publishPresence(EventPresenceOffline, presencePayload{UserID: userID, TeamID: teamID, Reason: reason})
}

func (n *Notifier) publishPresence(kind string, p presencePayload) {
	ev := Event{Type: kind, Payload: p}
	if p.TeamID != nil {
		n.fanout.PublishTeam(*p.TeamID, ev)
	}
	n.fanout.PublishGlobal(ev)
}

// OnlineEvent builds the onlinePresenceSnapshot event.
func OnlineEvent(userIDs []uint) Event {
	if userIDs == nil {
		userIDs = []uint{}
	}
	return Event{Type: EventOnlinePresence, Payload: onlinePayload{OnlineUserIDs: userIDs}}
}

// OnlineSnapshot sends the full online set to every connection.
func (n *Notifier) OnlineSnapshot(userIDs []uint) {
	n.fanout.PublishAll(OnlineEvent(userIDs))
}

// ForceLogout tells every connection of the user to drop its session.
func (n *Notifier) ForceLogout(userID uint) {
	n.fanout.PublishUser(userID, Event{Type: EventForceLogout})
}
