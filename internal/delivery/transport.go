package delivery

import (
	"context"

	"github.com/trovehunt/pushgate/internal/subscription"
)

// Receipt is the push provider's answer for a single send.
type Receipt struct {
	StatusCode int
}

// Transport sends one encrypted push message to one subscription. The
// custom Web Push sender and the hosted relay both implement it, so the
// fan-out never cares which backend carries a notification.
//
// A returned error means the attempt produced no classifiable HTTP status
// (network failure, open breaker, cancelled context); the fan-out counts it
// as a transient error.
type Transport interface {
	Send(ctx context.Context, sub *subscription.Subscription, message []byte) (Receipt, error)
}
