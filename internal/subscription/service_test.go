package subscription_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trovehunt/pushgate/internal/subscription"
	"github.com/trovehunt/pushgate/pkg/vapid"
)

func validP256dh() string {
	raw := make([]byte, vapid.PublicKeyLength)
	raw[0] = 0x04
	for i := 1; i < len(raw); i++ {
		raw[i] = byte(i)
	}
	return vapid.Encode(raw)
}

func validAuth() string {
	return vapid.Encode(make([]byte, 16))
}

func testSubscription(endpoint string) *subscription.Subscription {
	return &subscription.Subscription{
		Endpoint: endpoint,
		P256dh:   validP256dh(),
		Auth:     validAuth(),
	}
}

func newService() (*subscription.Service, *subscription.InMemoryRepository) {
	repo := subscription.NewInMemoryRepository()
	return subscription.NewService(repo, zerolog.Nop()), repo
}

func TestService_Save_UpsertIdempotence(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()

	const endpoint = "https://push.example.com/send/abc123"

	first := testSubscription(endpoint)
	require.NoError(t, svc.Save(ctx, first))

	// Renewal with fresh keys replaces the record in place.
	renewed := testSubscription(endpoint)
	raw := make([]byte, vapid.PublicKeyLength)
	raw[0] = 0x04
	raw[1] = 0xAB
	renewed.P256dh = vapid.Encode(raw)
	require.NoError(t, svc.Save(ctx, renewed))

	count, err := repo.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stored, err := repo.GetByEndpoint(ctx, endpoint)
	require.NoError(t, err)
	assert.Equal(t, renewed.P256dh, stored.P256dh)
	assert.False(t, stored.UpdatedAt.IsZero())
}

func TestService_Save_Validation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*subscription.Subscription)
	}{
		{"missing endpoint", func(s *subscription.Subscription) { s.Endpoint = "" }},
		{"bad endpoint url", func(s *subscription.Subscription) { s.Endpoint = "::not-a-url" }},
		{"missing p256dh", func(s *subscription.Subscription) { s.P256dh = "" }},
		{"short p256dh", func(s *subscription.Subscription) { s.P256dh = vapid.Encode(make([]byte, 10)) }},
		{"missing auth", func(s *subscription.Subscription) { s.Auth = "" }},
		{"garbage auth", func(s *subscription.Subscription) { s.Auth = "!!!" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := testSubscription("https://push.example.com/send/x")
			tt.mutate(sub)
			err := svc.Save(ctx, sub)
			assert.ErrorIs(t, err, subscription.ErrInvalidSubscription)
		})
	}
}

func TestService_Remove_Idempotent(t *testing.T) {
	svc, repo := newService()
	ctx := context.Background()

	sub := testSubscription("https://push.example.com/send/gone")
	require.NoError(t, svc.Save(ctx, sub))

	require.NoError(t, svc.Remove(ctx, sub.Endpoint))

	// Removing again changes nothing and is not an error.
	require.NoError(t, svc.Remove(ctx, sub.Endpoint))

	count, err := repo.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestService_ForUser(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	alice := "user-alice"
	bob := "user-bob"

	subA := testSubscription("https://push.example.com/send/a")
	subA.UserID = &alice
	subB := testSubscription("https://push.example.com/send/b")
	subB.UserID = &bob
	anon := testSubscription("https://push.example.com/send/c")

	for _, sub := range []*subscription.Subscription{subA, subB, anon} {
		require.NoError(t, svc.Save(ctx, sub))
	}

	got, err := svc.ForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, subA.Endpoint, got[0].Endpoint)

	both, err := svc.ForUsers(ctx, []string{alice, bob})
	require.NoError(t, err)
	assert.Len(t, both, 2)

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestInMemoryRepository_UpsertPreservesCreatedAt(t *testing.T) {
	repo := subscription.NewInMemoryRepository()
	ctx := context.Background()

	svc := subscription.NewService(repo, zerolog.Nop())

	sub := testSubscription("https://push.example.com/send/keep")
	require.NoError(t, svc.Save(ctx, sub))

	stored, err := repo.GetByEndpoint(ctx, sub.Endpoint)
	require.NoError(t, err)
	created := stored.CreatedAt

	renewed := testSubscription(sub.Endpoint)
	require.NoError(t, svc.Save(ctx, renewed))

	stored, err = repo.GetByEndpoint(ctx, sub.Endpoint)
	require.NoError(t, err)
	assert.Equal(t, created, stored.CreatedAt)
	assert.False(t, stored.UpdatedAt.Before(created))
}
