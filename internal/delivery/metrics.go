package delivery

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/trovehunt/pushgate/internal/delivery"

// Metrics tracks cumulative delivery statistics across fan-outs.
type Metrics struct {
	mu sync.Mutex

	totalSends      int64
	totalAttempts   int64
	delivered       int64
	expired         int64
	transientErrors int64
	permanentErrors int64
	lastSendAt      time.Time
	lastSendTime    time.Duration

	attemptCounter metric.Int64Counter
	sendDuration   metric.Float64Histogram
}

// MetricsSnapshot is a point-in-time copy of delivery statistics.
type MetricsSnapshot struct {
	TotalSends      int64         `json:"total_sends"`
	TotalAttempts   int64         `json:"total_attempts"`
	Delivered       int64         `json:"delivered"`
	Expired         int64         `json:"expired"`
	TransientErrors int64         `json:"transient_errors"`
	PermanentErrors int64         `json:"permanent_errors"`
	LastSendAt      time.Time     `json:"last_send_at"`
	LastSendTime    time.Duration `json:"last_send_time"`
}

func newMetrics() *Metrics {
	meter := otel.Meter(meterName)

	// Static instrument names; creation errors leave no-op instruments.
	attemptCounter, _ := meter.Int64Counter(
		"push.delivery.attempts",
		metric.WithDescription("Delivery attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	sendDuration, _ := meter.Float64Histogram(
		"push.delivery.send.duration",
		metric.WithDescription("Duration of fan-out sends in seconds"),
		metric.WithUnit("s"),
	)

	return &Metrics{
		attemptCounter: attemptCounter,
		sendDuration:   sendDuration,
	}
}

func (m *Metrics) record(result *Result, duration time.Duration) {
	m.mu.Lock()
	m.totalSends++
	m.totalAttempts += int64(result.Total())
	m.delivered += int64(result.Delivered)
	m.expired += int64(result.Expired)
	m.transientErrors += int64(result.TransientError)
	m.permanentErrors += int64(result.PermanentError)
	m.lastSendAt = time.Now()
	m.lastSendTime = duration
	m.mu.Unlock()

	// The caller's context may already be done when a send finishes.
	ctx := context.Background()
	m.recordOutcome(ctx, OutcomeDelivered, result.Delivered)
	m.recordOutcome(ctx, OutcomeExpired, result.Expired)
	m.recordOutcome(ctx, OutcomeTransientError, result.TransientError)
	m.recordOutcome(ctx, OutcomePermanentError, result.PermanentError)
	m.sendDuration.Record(ctx, duration.Seconds())
}

func (m *Metrics) recordOutcome(ctx context.Context, outcome Outcome, count int) {
	if count == 0 {
		return
	}
	m.attemptCounter.Add(ctx, int64(count),
		metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

func (m *Metrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MetricsSnapshot{
		TotalSends:      m.totalSends,
		TotalAttempts:   m.totalAttempts,
		Delivered:       m.delivered,
		Expired:         m.expired,
		TransientErrors: m.transientErrors,
		PermanentErrors: m.permanentErrors,
		LastSendAt:      m.lastSendAt,
		LastSendTime:    m.lastSendTime,
	}
}
