package subscription

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use the PostgreSQL
// implementation.
type InMemoryRepository struct {
	mu   sync.RWMutex
	subs map[string]*Subscription // keyed by endpoint
}

// NewInMemoryRepository creates a new in-memory subscription repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		subs: make(map[string]*Subscription),
	}
}

// Upsert creates or replaces a subscription keyed by endpoint.
func (r *InMemoryRepository) Upsert(_ context.Context, sub *Subscription) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.subs[sub.Endpoint]
	stored := copySubscription(sub)
	if exists {
		stored.CreatedAt = existing.CreatedAt
	}
	r.subs[sub.Endpoint] = stored
	return !exists, nil
}

// GetByEndpoint retrieves a subscription by its endpoint URL.
func (r *InMemoryRepository) GetByEndpoint(_ context.Context, endpoint string) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[endpoint]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return copySubscription(sub), nil
}

// ListByUser retrieves all subscriptions owned by a user.
func (r *InMemoryRepository) ListByUser(_ context.Context, userID string) ([]*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var subs []*Subscription
	for _, sub := range r.subs {
		if sub.UserID != nil && *sub.UserID == userID {
			subs = append(subs, copySubscription(sub))
		}
	}
	return subs, nil
}

// ListByUsers retrieves all subscriptions owned by any of the users.
func (r *InMemoryRepository) ListByUsers(_ context.Context, userIDs []string) ([]*Subscription, error) {
	wanted := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var subs []*Subscription
	for _, sub := range r.subs {
		if sub.UserID == nil {
			continue
		}
		if _, ok := wanted[*sub.UserID]; ok {
			subs = append(subs, copySubscription(sub))
		}
	}
	return subs, nil
}

// ListAll retrieves every stored subscription.
func (r *InMemoryRepository) ListAll(_ context.Context) ([]*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, copySubscription(sub))
	}
	return subs, nil
}

// DeleteByEndpoint removes a subscription. Missing endpoints are a no-op.
func (r *InMemoryRepository) DeleteByEndpoint(_ context.Context, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, endpoint)
	return nil
}

// CountAll returns the number of stored subscriptions.
func (r *InMemoryRepository) CountAll(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.subs)), nil
}

// copySubscription creates a deep copy of a subscription.
func copySubscription(s *Subscription) *Subscription {
	if s == nil {
		return nil
	}

	subCopy := &Subscription{
		Endpoint:  s.Endpoint,
		P256dh:    s.P256dh,
		Auth:      s.Auth,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}

	if s.UserID != nil {
		val := *s.UserID
		subCopy.UserID = &val
	}
	if s.UserAgent != nil {
		val := *s.UserAgent
		subCopy.UserAgent = &val
	}

	return subCopy
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
