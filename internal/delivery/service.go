package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/trovehunt/pushgate/internal/subscription"
)

// ErrNoTarget is returned when a send request names no audience.
var ErrNoTarget = errors.New("send target is required")

// Target selects the audience of a send: one user, a list of users, or
// every stored subscription.
type Target struct {
	All     bool
	UserID  string
	UserIDs []string
}

// Notification is the payload delivered to the service worker. The worker
// reads title/body for the notification banner and data for deep links.
type Notification struct {
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Result aggregates per-endpoint outcomes of one fan-out.
type Result struct {
	Delivered      int
	Expired        int
	TransientError int
	PermanentError int
}

// Total returns the number of attempted endpoints.
func (r *Result) Total() int {
	return r.Delivered + r.Expired + r.TransientError + r.PermanentError
}

// SubscriptionStore is the slice of the subscription service the fan-out
// needs: audience resolution and dead-endpoint cleanup.
type SubscriptionStore interface {
	ForUser(ctx context.Context, userID string) ([]*subscription.Subscription, error)
	ForUsers(ctx context.Context, userIDs []string) ([]*subscription.Subscription, error)
	All(ctx context.Context) ([]*subscription.Subscription, error)
	Remove(ctx context.Context, endpoint string) error
}

// Config holds configuration for the delivery service.
type Config struct {
	Transport Transport
	Store     SubscriptionStore
	Logger    zerolog.Logger

	// Concurrency caps simultaneous in-flight push requests. Default: 8.
	Concurrency int

	// AttemptTimeout bounds a single endpoint attempt. Default: 10 seconds.
	AttemptTimeout time.Duration

	// CleanupTimeout bounds a single expired-endpoint deletion. Default: 5 seconds.
	CleanupTimeout time.Duration
}

// Service fans a notification out to every matching subscription. One bad
// endpoint never aborts delivery to the rest of the audience, expired
// endpoints are deleted without blocking the caller's response, and
// transient failures are reported rather than retried.
type Service struct {
	transport      Transport
	store          SubscriptionStore
	logger         zerolog.Logger
	concurrency    int
	attemptTimeout time.Duration
	cleanupTimeout time.Duration

	metrics   *Metrics
	cleanupWG sync.WaitGroup
}

// NewService creates a new delivery service.
func NewService(cfg Config) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	if cfg.CleanupTimeout == 0 {
		cfg.CleanupTimeout = 5 * time.Second
	}

	return &Service{
		transport:      cfg.Transport,
		store:          cfg.Store,
		logger:         cfg.Logger,
		concurrency:    cfg.Concurrency,
		attemptTimeout: cfg.AttemptTimeout,
		cleanupTimeout: cfg.CleanupTimeout,
		metrics:        newMetrics(),
	}
}

// Send delivers the notification to every subscription matching the target.
// The caller's context acts as the overall deadline: attempts that have not
// started when it expires are counted as transient errors, never left in an
// unknown state.
func (s *Service) Send(ctx context.Context, target Target, note Notification) (*Result, error) {
	startTime := time.Now()

	subs, err := s.resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return &Result{}, nil
	}

	payload, err := json.Marshal(note)
	if err != nil {
		return nil, fmt.Errorf("encoding notification payload: %w", err)
	}

	s.logger.Info().
		Int("recipients", len(subs)).
		Int("concurrency", s.concurrency).
		Bool("broadcast", target.All).
		Msg("starting delivery fan-out")

	jobs := make(chan *subscription.Subscription, len(subs))
	attempts := make(chan Attempt, len(subs))

	workers := s.concurrency
	if workers > len(subs) {
		workers = len(subs)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.deliverWorker(ctx, payload, jobs, attempts)
		}()
	}

	for _, sub := range subs {
		jobs <- sub
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(attempts)
	}()

	result := &Result{}
	for attempt := range attempts {
		switch attempt.Outcome {
		case OutcomeDelivered:
			result.Delivered++
		case OutcomeExpired:
			result.Expired++
			s.scheduleCleanup(attempt.Endpoint)
		case OutcomeTransientError:
			result.TransientError++
		case OutcomePermanentError:
			result.PermanentError++
			s.logger.Warn().
				Int("status", attempt.HTTPStatus).
				Msg("permanent delivery error, keeping subscription")
		}
	}

	duration := time.Since(startTime)
	s.metrics.record(result, duration)

	s.logger.Info().
		Dur("duration", duration).
		Int("delivered", result.Delivered).
		Int("expired", result.Expired).
		Int("transient_errors", result.TransientError).
		Int("permanent_errors", result.PermanentError).
		Msg("delivery fan-out completed")

	return result, nil
}

// deliverWorker attempts delivery for queued subscriptions until the queue
// drains. Once the caller's deadline has expired, remaining work is drained
// as transient errors instead of hitting the transport.
func (s *Service) deliverWorker(ctx context.Context, payload []byte, jobs <-chan *subscription.Subscription, attempts chan<- Attempt) {
	for sub := range jobs {
		select {
		case <-ctx.Done():
			attempts <- Attempt{
				Endpoint:  sub.Endpoint,
				Outcome:   OutcomeTransientError,
				Timestamp: time.Now(),
				Err:       ctx.Err(),
			}
		default:
			attempts <- s.attempt(ctx, payload, sub)
		}
	}
}

// attempt performs one isolated delivery. Errors without an HTTP status
// (network failure, open breaker, deadline) classify as transient.
func (s *Service) attempt(ctx context.Context, payload []byte, sub *subscription.Subscription) Attempt {
	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	receipt, err := s.transport.Send(attemptCtx, sub, payload)
	if err != nil {
		s.logger.Debug().
			Err(err).
			Str("endpoint", sub.EndpointHost()).
			Msg("delivery attempt failed without status")
		return Attempt{
			Endpoint:  sub.Endpoint,
			Outcome:   OutcomeTransientError,
			Timestamp: time.Now(),
			Err:       err,
		}
	}

	return Attempt{
		Endpoint:   sub.Endpoint,
		Outcome:    Classify(receipt.StatusCode),
		HTTPStatus: receipt.StatusCode,
		Timestamp:  time.Now(),
	}
}

// scheduleCleanup deletes an expired endpoint without blocking the caller's
// response. Deleting an already-deleted endpoint is a no-op, so concurrent
// cleanups of the same endpoint are harmless.
func (s *Service) scheduleCleanup(endpoint string) {
	s.cleanupWG.Add(1)
	go func() {
		defer s.cleanupWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cleanupTimeout)
		defer cancel()

		if err := s.store.Remove(ctx, endpoint); err != nil {
			s.logger.Error().Err(err).Msg("failed to delete expired subscription")
			return
		}
		s.logger.Info().Msg("deleted expired subscription")
	}()
}

// WaitForCleanup blocks until all scheduled endpoint deletions finish.
// Used by worker shutdown and tests; request handlers never call it.
func (s *Service) WaitForCleanup() {
	s.cleanupWG.Wait()
}

// Metrics returns a snapshot of delivery statistics.
func (s *Service) Metrics() MetricsSnapshot {
	return s.metrics.snapshot()
}

func (s *Service) resolve(ctx context.Context, target Target) ([]*subscription.Subscription, error) {
	switch {
	case target.All:
		return s.store.All(ctx)
	case len(target.UserIDs) > 0:
		return s.store.ForUsers(ctx, target.UserIDs)
	case target.UserID != "":
		return s.store.ForUser(ctx, target.UserID)
	default:
		return nil, ErrNoTarget
	}
}
