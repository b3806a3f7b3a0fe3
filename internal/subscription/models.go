// Package subscription provides durable storage of Web Push subscriptions,
// keyed by endpoint.
package subscription

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrStorageUnavailable indicates the persistence layer failed. It is
	// surfaced distinctly from subscribe failures because the remediation
	// differs: retry persistence, not the whole subscribe flow.
	ErrStorageUnavailable = errors.New("subscription storage unavailable")
)

// Subscription is one browser/device/user combination. The endpoint is an
// opaque URL assigned by the push service and is the unique key; renewals
// replace the record in place, never partially update it.
type Subscription struct {
	Endpoint  string
	P256dh    string
	Auth      string
	UserID    *string
	UserAgent *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Anonymous reports whether the subscription was created before login.
func (s *Subscription) Anonymous() bool {
	return s.UserID == nil || *s.UserID == ""
}

// EndpointHost returns a short endpoint prefix for logging. Full endpoints
// are capability URLs and should not be written to logs verbatim.
func (s *Subscription) EndpointHost() string {
	const max = 40
	if len(s.Endpoint) <= max {
		return s.Endpoint
	}
	return s.Endpoint[:max]
}
