package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/trovehunt/pushgate/pkg/vapid"
)

// ErrInvalidSubscription is returned when a record fails validation before
// it ever reaches storage.
var ErrInvalidSubscription = errors.New("invalid subscription")

// Service provides validated subscription operations on top of a Repository.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a new subscription service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Save validates and upserts a subscription. Calling it twice with the same
// endpoint replaces the record; it never produces duplicates.
func (s *Service) Save(ctx context.Context, sub *Subscription) error {
	if err := validate(sub); err != nil {
		return err
	}

	now := time.Now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	created, err := s.repo.Upsert(ctx, sub)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}

	s.logger.Info().
		Str("endpoint", sub.EndpointHost()).
		Bool("created", created).
		Bool("anonymous", sub.Anonymous()).
		Msg("subscription stored")

	return nil
}

// Remove deletes a subscription by endpoint. Removing an endpoint that was
// already deleted is not an error.
func (s *Service) Remove(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidSubscription)
	}

	if err := s.repo.DeleteByEndpoint(ctx, endpoint); err != nil {
		return fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}
	return nil
}

// ForUser returns all subscriptions owned by a user.
func (s *Service) ForUser(ctx context.Context, userID string) ([]*Subscription, error) {
	subs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}
	return subs, nil
}

// ForUsers returns all subscriptions owned by any of the users.
func (s *Service) ForUsers(ctx context.Context, userIDs []string) ([]*Subscription, error) {
	subs, err := s.repo.ListByUsers(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}
	return subs, nil
}

// All returns every stored subscription, for broadcast delivery.
func (s *Service) All(ctx context.Context) ([]*Subscription, error) {
	subs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}
	return subs, nil
}

// Count returns the number of stored subscriptions.
func (s *Service) Count(ctx context.Context) (int64, error) {
	count, err := s.repo.CountAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}
	return count, nil
}

// validate rejects records that could never be delivered to. The p256dh key
// is an uncompressed P-256 point like the VAPID public key, so it goes
// through the same codec.
func validate(sub *Subscription) error {
	if sub == nil {
		return fmt.Errorf("%w: nil subscription", ErrInvalidSubscription)
	}
	if sub.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidSubscription)
	}

	u, err := url.Parse(sub.Endpoint)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: endpoint is not a valid URL", ErrInvalidSubscription)
	}

	if sub.P256dh == "" {
		return fmt.Errorf("%w: keys.p256dh is required", ErrInvalidSubscription)
	}
	if _, err := vapid.DecodePublicKey(sub.P256dh); err != nil {
		return fmt.Errorf("%w: keys.p256dh: %s", ErrInvalidSubscription, err.Error())
	}

	if sub.Auth == "" {
		return fmt.Errorf("%w: keys.auth is required", ErrInvalidSubscription)
	}
	if _, err := vapid.Decode(sub.Auth); err != nil {
		return fmt.Errorf("%w: keys.auth: %s", ErrInvalidSubscription, err.Error())
	}

	return nil
}
