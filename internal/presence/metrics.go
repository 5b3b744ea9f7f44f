package presence

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	heartbeats    metric.Int64Counter
	leaves        metric.Int64Counter
	autoLogouts   metric.Int64Counter
	sweepDuration metric.Float64Histogram
}

func newMetrics() *metrics {
	meter := otel.Meter("breaktopia/presence")
	heartbeats, _ := meter.Int64Counter("presence_heartbeats_total",
		metric.WithDescription("Total heartbeats received"))
	leaves, _ := meter.Int64Counter("presence_leaves_total",
		metric.WithDescription("Total tentative leave signals"))
	autoLogouts, _ := meter.Int64Counter("presence_auto_logouts_total",
		metric.WithDescription("Total auto-logouts after the grace period"))
	sweepDuration, _ := meter.Float64Histogram("presence_sweep_duration_seconds",
		metric.WithDescription("Duration of one auto-logout sweep"))
	return &metrics{
		heartbeats:    heartbeats,
		leaves:        leaves,
		autoLogouts:   autoLogouts,
		sweepDuration: sweepDuration,
	}
}

func (m *metrics) heartbeat(ctx context.Context, recovered bool) {
	m.heartbeats.Add(ctx, 1, metric.WithAttributes(attribute.Bool("recovered", recovered)))
}

func (m *metrics) leave(ctx context.Context) {
	m.leaves.Add(ctx, 1)
}

func (m *metrics) autoLogout(ctx context.Context, sessionClosed bool) {
	m.autoLogouts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("break_closed", sessionClosed)))
}

func (m *metrics) sweep(ctx context.Context, d time.Duration, loggedOut int) {
	m.sweepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Int("logged_out", loggedOut)))
}
