package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/trovehunt/pushgate/internal/provider/resilience"
	"github.com/trovehunt/pushgate/internal/subscription"
)

// RelayConfig holds configuration for the hosted relay transport.
type RelayConfig struct {
	// BaseURL is the relay API root, e.g. https://push-relay.example.com.
	BaseURL string

	// APIKey authenticates this application with the relay.
	APIKey string

	// TTL is how long (seconds) the relay may hold an undelivered message.
	// Default: 24 hours.
	TTL int

	// Client overrides the resilient HTTP client. Optional.
	Client *resilience.Client
}

// RelayTransport forwards push messages through a hosted push-notification
// provider instead of talking to browser push services directly. It is an
// alternate carrier behind the same Transport interface; fan-out, outcome
// classification, and cleanup stay in the delivery service so the two
// backends never duplicate that logic.
//
// Unlike the Web Push transport, relay calls go through the resilient
// client: a relay API request is safe to retry because the relay
// de-duplicates by endpoint and message id.
type RelayTransport struct {
	config RelayConfig
	client *resilience.Client
}

// relayMessage is the relay's wire format for a single send.
type relayMessage struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
	Payload string `json:"payload"` // base64 of the notification JSON
	TTL     int    `json:"ttl"`
}

// NewRelayTransport creates a relay transport.
func NewRelayTransport(cfg RelayConfig) (*RelayTransport, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("relay: base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("relay: API key is required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * 60 * 60
	}

	client := cfg.Client
	if client == nil {
		client = resilience.NewClient(resilience.DefaultClientConfig("push-relay"))
	}

	return &RelayTransport{
		config: cfg,
		client: client,
	}, nil
}

// Send forwards one message for one subscription through the relay.
func (t *RelayTransport) Send(ctx context.Context, sub *subscription.Subscription, message []byte) (Receipt, error) {
	msg := relayMessage{
		Endpoint: sub.Endpoint,
		Payload:  base64.StdEncoding.EncodeToString(message),
		TTL:      t.config.TTL,
	}
	msg.Keys.P256dh = sub.P256dh
	msg.Keys.Auth = sub.Auth

	body, err := json.Marshal(msg)
	if err != nil {
		return Receipt{}, fmt.Errorf("encoding relay message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.config.APIKey)

	resp, err := t.client.DoWithContext(ctx, req)
	if err != nil {
		return Receipt{}, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return Receipt{StatusCode: resp.StatusCode}, nil
}

// Health reports the relay circuit breaker state for status reporting.
func (t *RelayTransport) Health() *resilience.ProviderHealth {
	return &resilience.ProviderHealth{
		Name:         "push-relay",
		CircuitState: t.client.CircuitBreakerState(),
		Counts:       t.client.CircuitBreakerCounts(),
	}
}

// Ensure RelayTransport implements Transport.
var _ Transport = (*RelayTransport)(nil)
