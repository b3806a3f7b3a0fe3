package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/trovehunt/pushgate/internal/delivery"
)

// Dispatcher runs queued send jobs through the delivery fan-out.
type Dispatcher struct {
	deliveries *delivery.Service
	logger     zerolog.Logger
	jobTimeout time.Duration

	metrics *DispatchMetrics
}

// DispatchMetrics tracks dispatcher statistics.
type DispatchMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalJobs       int64
	InvalidJobs     int64
	FailedJobs      int64
	Delivered       int64
	Expired         int64
	TransientErrors int64
	PermanentErrors int64

	// Timings
	LastJobAt       time.Time
	LastJobDuration time.Duration
	TotalDuration   time.Duration
}

// DispatchConfig holds configuration for creating a Dispatcher.
type DispatchConfig struct {
	Deliveries *delivery.Service
	Logger     zerolog.Logger

	// JobTimeout bounds a single fan-out. Endpoints not yet attempted when
	// it expires are counted as transient errors. Default: 2 minutes.
	JobTimeout time.Duration
}

// NewDispatcher creates a new send-job dispatcher.
func NewDispatcher(cfg DispatchConfig) *Dispatcher {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}

	return &Dispatcher{
		deliveries: cfg.Deliveries,
		logger:     cfg.Logger,
		jobTimeout: cfg.JobTimeout,
		metrics:    &DispatchMetrics{},
	}
}

// Dispatch validates and runs one send job. An ErrInvalidJob return means
// the job is a poison message; any other error means nothing was attempted
// and the job is safe to redeliver.
func (d *Dispatcher) Dispatch(ctx context.Context, job SendJob) (*delivery.Result, error) {
	startTime := time.Now()

	if err := job.Validate(); err != nil {
		d.recordInvalid()
		return nil, err
	}

	jobCtx, cancel := context.WithTimeout(ctx, d.jobTimeout)
	defer cancel()

	result, err := d.deliveries.Send(jobCtx, job.deliveryTarget(), job.notification())
	if err != nil {
		if errors.Is(err, delivery.ErrNoTarget) {
			d.recordInvalid()
			return nil, fmt.Errorf("%w: %s", ErrInvalidJob, err.Error())
		}
		d.recordFailed()
		return nil, err
	}

	duration := time.Since(startTime)
	d.recordResult(result, duration)

	d.logger.Info().
		Int("delivered", result.Delivered).
		Int("expired", result.Expired).
		Int("transient_errors", result.TransientError).
		Int("permanent_errors", result.PermanentError).
		Dur("duration", duration).
		Msg("send job completed")

	return result, nil
}

// Drain waits for in-flight cleanup of expired subscriptions to finish.
// Called during worker shutdown.
func (d *Dispatcher) Drain() {
	d.deliveries.WaitForCleanup()
}

func (d *Dispatcher) recordInvalid() {
	d.metrics.mu.Lock()
	defer d.metrics.mu.Unlock()
	d.metrics.TotalJobs++
	d.metrics.InvalidJobs++
}

func (d *Dispatcher) recordFailed() {
	d.metrics.mu.Lock()
	defer d.metrics.mu.Unlock()
	d.metrics.TotalJobs++
	d.metrics.FailedJobs++
}

func (d *Dispatcher) recordResult(result *delivery.Result, duration time.Duration) {
	d.metrics.mu.Lock()
	defer d.metrics.mu.Unlock()

	d.metrics.TotalJobs++
	d.metrics.Delivered += int64(result.Delivered)
	d.metrics.Expired += int64(result.Expired)
	d.metrics.TransientErrors += int64(result.TransientError)
	d.metrics.PermanentErrors += int64(result.PermanentError)
	d.metrics.LastJobAt = time.Now()
	d.metrics.LastJobDuration = duration
	d.metrics.TotalDuration += duration
}

// GetMetrics returns a copy of the current metrics.
func (d *Dispatcher) GetMetrics() DispatchMetrics {
	d.metrics.mu.RLock()
	defer d.metrics.mu.RUnlock()

	return DispatchMetrics{
		TotalJobs:       d.metrics.TotalJobs,
		InvalidJobs:     d.metrics.InvalidJobs,
		FailedJobs:      d.metrics.FailedJobs,
		Delivered:       d.metrics.Delivered,
		Expired:         d.metrics.Expired,
		TransientErrors: d.metrics.TransientErrors,
		PermanentErrors: d.metrics.PermanentErrors,
		LastJobAt:       d.metrics.LastJobAt,
		LastJobDuration: d.metrics.LastJobDuration,
		TotalDuration:   d.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (d *Dispatcher) MetricsSnapshot() map[string]interface{} {
	m := d.GetMetrics()
	return map[string]interface{}{
		"total_jobs":        m.TotalJobs,
		"invalid_jobs":      m.InvalidJobs,
		"failed_jobs":       m.FailedJobs,
		"delivered":         m.Delivered,
		"expired":           m.Expired,
		"transient_errors":  m.TransientErrors,
		"permanent_errors":  m.PermanentErrors,
		"last_job_at":       m.LastJobAt,
		"last_job_duration": m.LastJobDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}
