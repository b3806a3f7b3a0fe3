package subscription

import "context"

// Repository defines the interface for subscription persistence.
type Repository interface {
	// Upsert creates or replaces a subscription keyed by endpoint.
	// Returns true if a new record was created, false if replaced.
	Upsert(ctx context.Context, sub *Subscription) (created bool, err error)

	// GetByEndpoint retrieves a subscription by its endpoint URL.
	GetByEndpoint(ctx context.Context, endpoint string) (*Subscription, error)

	// ListByUser retrieves all subscriptions owned by a user.
	ListByUser(ctx context.Context, userID string) ([]*Subscription, error)

	// ListByUsers retrieves all subscriptions owned by any of the users.
	ListByUsers(ctx context.Context, userIDs []string) ([]*Subscription, error)

	// ListAll retrieves every stored subscription, for broadcast delivery.
	ListAll(ctx context.Context) ([]*Subscription, error)

	// DeleteByEndpoint removes a subscription. Deleting an endpoint that
	// does not exist is not an error.
	DeleteByEndpoint(ctx context.Context, endpoint string) error

	// CountAll returns the number of stored subscriptions.
	CountAll(ctx context.Context) (int64, error)
}
