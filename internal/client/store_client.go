package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/trovehunt/pushgate/internal/subscription"
)

// HTTPStoreClient persists subscriptions through the backend's push
// endpoints. Persistence calls are retried with exponential backoff; both
// endpoints are idempotent upserts/deletes so a duplicate delivery of the
// same request is harmless.
type HTTPStoreClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	maxRetries uint64
}

// StoreClientConfig holds configuration for the HTTP store client.
type StoreClientConfig struct {
	// BaseURL is the API root, e.g. https://api.trovehunt.app.
	BaseURL string

	// AuthToken is an optional bearer token attaching the subscription to
	// the signed-in user. Anonymous enrollment works without it.
	AuthToken string

	// Timeout bounds a single HTTP attempt. Default: 10 seconds.
	Timeout time.Duration

	// MaxRetries caps retry attempts per call. Default: 3.
	MaxRetries uint64
}

// NewHTTPStoreClient creates a new HTTP store client.
func NewHTTPStoreClient(cfg StoreClientConfig) *HTTPStoreClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	return &HTTPStoreClient{
		baseURL:   cfg.BaseURL,
		authToken: cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries: cfg.MaxRetries,
	}
}

type subscribePayload struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

type unsubscribePayload struct {
	Endpoint string `json:"endpoint"`
}

// Save upserts the subscription on the backend.
func (c *HTTPStoreClient) Save(ctx context.Context, sub *PushSubscription) error {
	payload := subscribePayload{Endpoint: sub.Endpoint}
	payload.Keys.P256dh = sub.P256dh
	payload.Keys.Auth = sub.Auth

	return c.post(ctx, "/push/subscribe", payload)
}

// Remove deletes the subscription on the backend.
func (c *HTTPStoreClient) Remove(ctx context.Context, endpoint string) error {
	return c.post(ctx, "/push/unsubscribe", unsubscribePayload{Endpoint: endpoint})
}

func (c *HTTPStoreClient) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.authToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error: %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			// A rejected request will not get better on retry.
			return backoff.Permanent(fmt.Errorf("request rejected: %d", resp.StatusCode))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return fmt.Errorf("%w: %s", subscription.ErrStorageUnavailable, err.Error())
	}
	return nil
}

// Ensure HTTPStoreClient implements StoreClient.
var _ StoreClient = (*HTTPStoreClient)(nil)
