package realtime

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the part of *nats.Conn the relay needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NATSRelay mirrors fanout events to NATS subjects "<prefix>.<topic>" for
// consumers outside this process. Nothing is read back.
type NATSRelay struct {
	pub    Publisher
	prefix string
	log    *slog.Logger
}

func NewNATSRelay(pub Publisher, prefix string, logger *slog.Logger) *NATSRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSRelay{pub: pub, prefix: prefix, log: logger}
}

type relayEnvelope struct {
	Topic string    `json:"topic"`
	At    time.Time `json:"at"`
	Event Event     `json:"event"`
}

func (r *NATSRelay) Relay(topic string, ev Event) {
	data, err := json.Marshal(relayEnvelope{Topic: topic, At: time.Now().UTC(), Event: ev})
	if err != nil {
		r.log.Warn("Failed to marshal relay event", "topic", topic, "error", err)
		return
	}
	if err := r.pub.Publish(r.prefix+"."+topic, data); err != nil {
		r.log.Warn("Failed to relay event", "topic", topic, "error", err)
	}
}

// ConnectNATS dials the server with reconnects enabled and connection state
// changes logged.
func ConnectNATS(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
}
