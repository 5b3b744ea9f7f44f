package realtime

import (
	"strconv"

	"github.com/leandro-lugaresi/hub"
)

// Event types pushed to clients.
const (
	EventStatus          = "status"
	EventCapacity        = "capacity"
	EventPresenceOnline  = "presenceOnline"
	EventPresenceOffline = "presenceOffline"
	EventOnlinePresence  = "onlinePresenceSnapshot"
	EventForceLogout     = "forceLogout"
)

// Topic families. Team members subscribe to their team topic, superadmins to
// GlobalTopic, every connection to BroadcastTopic and its own user topic.
const (
	GlobalTopic    = "global"
	BroadcastTopic = "broadcast"
)

func TeamTopic(teamID uint) string {
	return "team." + strconv.FormatUint(uint64(teamID), 10)
}

func UserTopic(userID uint) string {
	return "user." + strconv.FormatUint(uint64(userID), 10)
}

// Event is the frame written to a push connection.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

const eventField = "event"

// Relay receives a copy of every published event.
type Relay interface {
	Relay(topic string, ev Event)
}

// Fanout is a topic pub/sub for push connections. Delivery is best effort: a
// subscriber whose buffer is full misses events rather than blocking others.
type Fanout struct {
	hub   *hub.Hub
	relay Relay
}

func NewFanout(relay Relay) *Fanout {
	return &Fanout{hub: hub.New(), relay: relay}
}

func (f *Fanout) publish(topic string, ev Event) {
	f.hub.Publish(hub.Message{
		Name:   topic,
		Fields: hub.Fields{eventField: ev},
	})
	if f.relay != nil {
		f.relay.Relay(topic, ev)
	}
}

func (f *Fanout) PublishTeam(teamID uint, ev Event) { f.publish(TeamTopic(teamID), ev) }
func (f *Fanout) PublishGlobal(ev Event)            { f.publish(GlobalTopic, ev) }
func (f *Fanout) PublishUser(userID uint, ev Event) { f.publish(UserTopic(userID), ev) }
func (f *Fanout) PublishAll(ev Event)               { f.publish(BroadcastTopic, ev) }

// Subscription delivers events for a fixed set of topics.
type Subscription struct {
	sub  hub.Subscription
	C    <-chan Event
	done chan struct{}
}

// Subscribe opens a subscription buffering up to capacity events.
func (f *Fanout) Subscribe(capacity int, topics ...string) *Subscription {
	sub := f.hub.NonBlockingSubscribe(capacity, topics...)
	out := make(chan Event, capacity)
	s := &Subscription{sub: sub, C: out, done: make(chan struct{})}

	go func() {
		defer close(out)
		for {
			select {
			case <-s.done:
				return
			case msg, ok := <-sub.Receiver:
				if !ok {
					return
				}
				ev, ok := msg.Fields[eventField].(Event)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-s.done:
					return
				}
			}
		}
	}()
	return s
}

// Unsubscribe stops delivery and closes C.
func (f *Fanout) Unsubscribe(s *Subscription) {
	close(s.done)
	f.hub.Unsubscribe(s.sub)
}

// Close shuts down the hub and every subscription.
func (f *Fanout) Close() {
	f.hub.Close()
}
