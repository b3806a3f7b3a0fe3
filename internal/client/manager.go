package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/trovehunt/pushgate/pkg/vapid"
)

// Status describes what the push enrollment flow can currently do.
type Status string

const (
	// StatusUnsupported means the host lacks service worker or Push API
	// support.
	StatusUnsupported Status = "unsupported"

	// StatusBlocked means the user denied notification permission. Only a
	// browser settings change can leave this state.
	StatusBlocked Status = "blocked"

	// StatusIdle means permission has not been requested yet.
	StatusIdle Status = "idle"

	// StatusReady means permission is granted but no subscription exists.
	StatusReady Status = "ready"

	// StatusSubscribed means an active push subscription exists.
	StatusSubscribed Status = "subscribed"

	// StatusError means a capability probe failed.
	StatusError Status = "error"
)

var (
	// ErrUnsupported is returned when the host cannot do push at all.
	ErrUnsupported = errors.New("push is not supported on this host")

	// ErrPermissionBlocked is returned when notification permission is
	// denied. The manager never re-prompts after a denial; browsers punish
	// repeat prompts and the user has already answered.
	ErrPermissionBlocked = errors.New("notification permission denied")

	// ErrNoController is returned when the service worker could not take
	// control of the page before the activation window closed.
	ErrNoController = errors.New("service worker is not controlling the page")
)

// SubscribeError wraps a failure inside the enable flow with the step that
// produced it.
type SubscribeError struct {
	Step  string
	Cause error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("push subscribe failed at %s: %v", e.Step, e.Cause)
}

func (e *SubscribeError) Unwrap() error {
	return e.Cause
}

// StoreClient persists subscriptions to the backend.
type StoreClient interface {
	Save(ctx context.Context, sub *PushSubscription) error
	Remove(ctx context.Context, endpoint string) error
}

// ManagerConfig holds configuration for the subscription manager.
type ManagerConfig struct {
	Push   PushBridge
	Guard  *ControllerGuard
	Store  StoreClient
	Logger zerolog.Logger

	// PublicKey is the application server VAPID public key, base64url.
	PublicKey string
}

// Manager drives push enrollment end to end: permission, controller check,
// subscribe, persist. Enable is idempotent; calling it while already
// subscribed replaces the subscription with a fresh one rather than
// failing or stacking duplicates.
type Manager struct {
	push      PushBridge
	guard     *ControllerGuard
	store     StoreClient
	logger    zerolog.Logger
	publicKey string

	// mu single-flights Enable/Disable; overlapping enrollment runs
	// corrupt each other's unsubscribe/subscribe sequencing.
	mu         sync.Mutex
	deniedOnce bool
}

// NewManager creates a new subscription manager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		push:      cfg.Push,
		guard:     cfg.Guard,
		store:     cfg.Store,
		logger:    cfg.Logger,
		publicKey: cfg.PublicKey,
	}
}

// Status computes the current enrollment state from the host's actual
// capabilities and permission. Nothing is cached; browser settings can
// change between calls.
func (m *Manager) Status(ctx context.Context) Status {
	if !m.push.Supported() {
		return StatusUnsupported
	}

	permission, err := m.push.PermissionState(ctx)
	if err != nil {
		return StatusError
	}
	if permission == PermissionDenied {
		return StatusBlocked
	}
	if permission == PermissionDefault {
		return StatusIdle
	}

	sub, err := m.push.Subscription(ctx)
	if err != nil {
		return StatusError
	}
	if sub != nil {
		return StatusSubscribed
	}
	return StatusReady
}

// Enable runs the full enrollment flow and returns the stored subscription.
//
// The flow is: check support, obtain permission, ensure the worker controls
// the page, drop any existing subscription, subscribe against the decoded
// application server key, and persist the result. The key is decoded and
// validated before the Push API is touched so a corrupt key fails loudly
// here instead of producing an endpoint no sender can use.
func (m *Manager) Enable(ctx context.Context) (*PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.push.Supported() {
		return nil, ErrUnsupported
	}

	if err := m.ensurePermission(ctx); err != nil {
		return nil, err
	}

	controlled, err := m.guard.Ensure(ctx)
	if err != nil {
		return nil, &SubscribeError{Step: "service worker registration", Cause: err}
	}
	if !controlled {
		if m.guard.State() == GuardUnsupported {
			return nil, ErrUnsupported
		}
		return nil, &SubscribeError{Step: "service worker activation", Cause: ErrNoController}
	}

	// An existing subscription may be bound to an older application server
	// key. Drop it and subscribe fresh rather than trusting it.
	existing, err := m.push.Subscription(ctx)
	if err != nil {
		return nil, &SubscribeError{Step: "subscription lookup", Cause: err}
	}
	if existing != nil {
		if err := m.push.Unsubscribe(ctx); err != nil {
			return nil, &SubscribeError{Step: "unsubscribe", Cause: err}
		}
	}

	appServerKey, err := vapid.DecodePublicKey(m.publicKey)
	if err != nil {
		return nil, &SubscribeError{Step: "application server key", Cause: err}
	}

	sub, err := m.push.Subscribe(ctx, appServerKey)
	if err != nil {
		return nil, &SubscribeError{Step: "subscribe", Cause: err}
	}

	if err := m.store.Save(ctx, sub); err != nil {
		// The browser subscription stays; a later Enable resubscribes and
		// retries persistence.
		return nil, &SubscribeError{Step: "persist", Cause: err}
	}

	m.logger.Info().Msg("push enrollment completed")
	return sub, nil
}

// Disable drops the active subscription on both sides. It is a no-op when
// no subscription exists.
func (m *Manager) Disable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.push.Supported() {
		return nil
	}

	sub, err := m.push.Subscription(ctx)
	if err != nil {
		return fmt.Errorf("subscription lookup: %w", err)
	}
	if sub == nil {
		return nil
	}

	if err := m.push.Unsubscribe(ctx); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}

	if err := m.store.Remove(ctx, sub.Endpoint); err != nil {
		return fmt.Errorf("removing stored subscription: %w", err)
	}

	m.logger.Info().Msg("push enrollment removed")
	return nil
}

// ensurePermission resolves notification permission to granted or fails.
// A denial is remembered for the life of the manager so repeat Enable calls
// do not re-prompt.
func (m *Manager) ensurePermission(ctx context.Context) error {
	if m.deniedOnce {
		return ErrPermissionBlocked
	}

	permission, err := m.push.PermissionState(ctx)
	if err != nil {
		return &SubscribeError{Step: "permission check", Cause: err}
	}

	switch permission {
	case PermissionGranted:
		return nil
	case PermissionDenied:
		m.deniedOnce = true
		return ErrPermissionBlocked
	}

	permission, err = m.push.RequestPermission(ctx)
	if err != nil {
		return &SubscribeError{Step: "permission prompt", Cause: err}
	}
	if permission != PermissionGranted {
		m.deniedOnce = true
		return ErrPermissionBlocked
	}
	return nil
}
