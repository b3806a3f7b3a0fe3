package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sony/gobreaker/v2"

	"github.com/trovehunt/pushgate/internal/provider/resilience"
	"github.com/trovehunt/pushgate/internal/subscription"
	"github.com/trovehunt/pushgate/pkg/vapid"
)

// WebPushConfig holds configuration for the Web Push transport.
type WebPushConfig struct {
	// Keys is the VAPID key pair authorizing sends. The private key stays
	// inside this transport.
	Keys vapid.KeyPair

	// Subscriber is the contact address reported to push services
	// (webpush-go prefixes mailto: automatically).
	Subscriber string

	// TTL is how long (seconds) the push service may hold an undelivered
	// message. Default: 24 hours.
	TTL int

	// Timeout bounds a single push service call. Default: 10 seconds.
	Timeout time.Duration

	// Registry receives per-origin breaker health for /ops/status.
	// Optional.
	Registry *resilience.Registry
}

// WebPushTransport sends messages directly to browser push services using
// the Web Push protocol. Each push service origin gets its own circuit
// breaker: a single melting-down service must not block sends to the rest.
// There is deliberately no retry here; transient failures are outcomes.
type WebPushTransport struct {
	config     WebPushConfig
	httpClient *http.Client
	registry   *resilience.Registry

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[int]
}

// NewWebPushTransport creates a Web Push transport. The configured public
// key must already have passed codec validation.
func NewWebPushTransport(cfg WebPushConfig) (*WebPushTransport, error) {
	if _, err := vapid.DecodePublicKey(cfg.Keys.PublicKey); err != nil {
		return nil, err
	}
	if cfg.Subscriber == "" {
		return nil, errors.New("webpush: subscriber contact is required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * 60 * 60
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	registry := cfg.Registry
	if registry == nil {
		registry = resilience.NewRegistry()
	}

	return &WebPushTransport{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		registry: registry,
		breakers: make(map[string]*gobreaker.CircuitBreaker[int]),
	}, nil
}

// Send delivers one message to one subscription's push service.
func (t *WebPushTransport) Send(ctx context.Context, sub *subscription.Subscription, message []byte) (Receipt, error) {
	origin, err := endpointOrigin(sub.Endpoint)
	if err != nil {
		return Receipt{}, err
	}

	cb := t.breakerFor(origin)

	status, err := cb.Execute(func() (int, error) {
		return t.push(ctx, sub, message)
	})
	if err != nil {
		// A 5xx tripped the breaker accounting but still carries a status
		// the fan-out can classify.
		var se *resilience.ServerError
		if errors.As(err, &se) {
			t.registry.RecordFailure(origin, se)
			return Receipt{StatusCode: se.StatusCode}, nil
		}

		t.registry.RecordFailure(origin, err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Receipt{}, fmt.Errorf("%w: %s", resilience.ErrCircuitOpen, origin)
		}
		return Receipt{}, err
	}

	t.registry.RecordSuccess(origin)
	return Receipt{StatusCode: status}, nil
}

// push performs the raw Web Push call, encrypting the payload against the
// subscription's keys and signing with the VAPID pair.
func (t *WebPushTransport) push(ctx context.Context, sub *subscription.Subscription, message []byte) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, message, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      t.httpClient,
		Subscriber:      t.config.Subscriber,
		TTL:             t.config.TTL,
		Urgency:         webpush.UrgencyNormal,
		VAPIDPublicKey:  t.config.Keys.PublicKey,
		VAPIDPrivateKey: t.config.Keys.PrivateKey,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return 0, &resilience.ServerError{StatusCode: resp.StatusCode}
	}

	return resp.StatusCode, nil
}

// breakerFor returns the circuit breaker for a push service origin,
// creating and registering it on first use.
func (t *WebPushTransport) breakerFor(origin string) *gobreaker.CircuitBreaker[int] {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, ok := t.breakers[origin]; ok {
		return cb
	}

	cb := resilience.NewCircuitBreaker[int](resilience.DefaultCircuitBreakerConfig(origin))
	t.breakers[origin] = cb
	t.registry.Register(origin, breakerAdapter{cb})
	return cb
}

// Registry exposes the provider health registry for status reporting.
func (t *WebPushTransport) Registry() *resilience.Registry {
	return t.registry
}

// endpointOrigin extracts the push service host from an endpoint URL.
func endpointOrigin(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid endpoint URL: %q", endpoint)
	}
	return u.Host, nil
}

// breakerAdapter exposes a typed gobreaker as a resilience.Breaker.
type breakerAdapter struct {
	cb *gobreaker.CircuitBreaker[int]
}

func (a breakerAdapter) CircuitBreakerState() gobreaker.State {
	return a.cb.State()
}

func (a breakerAdapter) CircuitBreakerCounts() gobreaker.Counts {
	return a.cb.Counts()
}

// Ensure WebPushTransport implements Transport.
var _ Transport = (*WebPushTransport)(nil)
