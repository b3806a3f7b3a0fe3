// Package delivery implements server-side Web Push fan-out: one message per
// stored subscription, per-endpoint failure isolation, and store cleanup of
// endpoints the push service has discarded.
package delivery

import (
	"net/http"
	"time"
)

// Outcome classifies a single delivery attempt. Outcomes are first-class
// results, not errors: a failing endpoint is a routine occurrence at scale.
type Outcome string

const (
	// OutcomeDelivered means the push service accepted the message (2xx).
	OutcomeDelivered Outcome = "delivered"

	// OutcomeExpired means the push service has permanently discarded the
	// endpoint (404/410). Retrying is never correct; the subscription is
	// scheduled for deletion.
	OutcomeExpired Outcome = "expired"

	// OutcomeTransientError covers 429, 5xx, network failures, open circuit
	// breakers, and deadline expiry. No inline retry is performed; retry
	// scheduling belongs to the caller.
	OutcomeTransientError Outcome = "transient-error"

	// OutcomePermanentError covers any other 4xx. It usually indicates a
	// payload or auth bug, not a dead endpoint, so the subscription is kept.
	OutcomePermanentError Outcome = "permanent-error"
)

// Classify maps a push service HTTP status to an outcome.
func Classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeDelivered
	case status == http.StatusNotFound || status == http.StatusGone:
		return OutcomeExpired
	case status == http.StatusTooManyRequests || status >= 500:
		return OutcomeTransientError
	default:
		return OutcomePermanentError
	}
}

// Attempt records the outcome of one delivery attempt to one endpoint.
// Attempts are transient; they exist to decide cleanup and to report counts,
// and are not persisted.
type Attempt struct {
	Endpoint   string
	Outcome    Outcome
	HTTPStatus int
	Timestamp  time.Time
	Err        error
}
