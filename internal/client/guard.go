package client

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// GuardState describes the outcome of the last controller check.
type GuardState string

const (
	// GuardUnknown means the guard has not run yet.
	GuardUnknown GuardState = "unknown"

	// GuardUnsupported means the host has no service worker support. The
	// app keeps working without push.
	GuardUnsupported GuardState = "unsupported"

	// GuardControlled means our worker controls the page.
	GuardControlled GuardState = "controlled"

	// GuardUncontrolled means the worker did not take control before the
	// activation window closed.
	GuardUncontrolled GuardState = "uncontrolled"
)

// DefaultActivationTimeout bounds how long Ensure waits for a freshly
// registered worker to claim the page.
const DefaultActivationTimeout = 3 * time.Second

// GuardConfig holds configuration for the controller guard.
type GuardConfig struct {
	Bridge    ServiceWorkerBridge
	ScriptURL string
	Logger    zerolog.Logger

	// ActivationTimeout overrides DefaultActivationTimeout. Optional.
	ActivationTimeout time.Duration
}

// ControllerGuard makes sure the push-capable service worker controls the
// page before any subscribe step runs. Subscribing under a stale or absent
// controller produces subscriptions bound to the wrong worker, which then
// silently drop notifications.
type ControllerGuard struct {
	bridge    ServiceWorkerBridge
	scriptURL string
	timeout   time.Duration
	logger    zerolog.Logger

	mu    sync.Mutex
	state GuardState
}

// NewControllerGuard creates a new controller guard.
func NewControllerGuard(cfg GuardConfig) *ControllerGuard {
	if cfg.ActivationTimeout == 0 {
		cfg.ActivationTimeout = DefaultActivationTimeout
	}

	return &ControllerGuard{
		bridge:    cfg.Bridge,
		scriptURL: cfg.ScriptURL,
		timeout:   cfg.ActivationTimeout,
		logger:    cfg.Logger,
		state:     GuardUnknown,
	}
}

// State returns the outcome of the most recent Ensure call.
func (g *ControllerGuard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Ensure resolves true once our worker controls the page and false when it
// could not take control in time. It always resolves: a worker stuck in the
// waiting state or an activation that never lands degrades to false after
// the activation timeout instead of hanging the enrollment flow.
func (g *ControllerGuard) Ensure(ctx context.Context) (bool, error) {
	if !g.bridge.Supported() {
		g.setState(GuardUnsupported)
		return false, nil
	}

	if g.controllerMatches() {
		g.setState(GuardControlled)
		return true, nil
	}

	// Subscribe to controller changes before registering, otherwise an
	// activation landing between the two calls is lost.
	changes := g.bridge.ControllerChange()

	reg, err := g.bridge.Register(ctx, g.scriptURL)
	if err != nil {
		g.setState(GuardUncontrolled)
		return false, err
	}

	// An updated worker parks in the waiting state behind the old one
	// until every old tab closes. Skip the wait so this page can be
	// claimed now.
	if reg.Waiting() {
		reg.PostSkipWaiting()
	}

	// Registration may have activated and claimed the page already.
	if g.controllerMatches() {
		g.setState(GuardControlled)
		return true, nil
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	for {
		select {
		case <-changes:
			if g.controllerMatches() {
				g.setState(GuardControlled)
				return true, nil
			}
		case <-timer.C:
			g.logger.Warn().
				Dur("timeout", g.timeout).
				Msg("service worker did not take control in time")
			g.setState(GuardUncontrolled)
			return false, nil
		case <-ctx.Done():
			g.setState(GuardUncontrolled)
			return false, ctx.Err()
		}
	}
}

func (g *ControllerGuard) setState(state GuardState) {
	g.mu.Lock()
	g.state = state
	g.mu.Unlock()
}

// controllerMatches reports whether the current page controller runs our
// worker script. Comparison is by URL path so absolute and relative script
// URLs match.
func (g *ControllerGuard) controllerMatches() bool {
	controller := g.bridge.ControllerScriptURL()
	if controller == "" {
		return false
	}
	return scriptPath(controller) == scriptPath(g.scriptURL)
}

func scriptPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.Path == "" {
		return rawURL
	}
	return u.Path
}
