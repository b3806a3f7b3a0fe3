package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trovehunt/pushgate/internal/client"
	"github.com/trovehunt/pushgate/pkg/vapid"
)

func testPublicKey() string {
	raw := make([]byte, vapid.PublicKeyLength)
	raw[0] = 0x04
	for i := 1; i < len(raw); i++ {
		raw[i] = byte(i)
	}
	return vapid.Encode(raw)
}

// fakePush scripts the Push API and records the order of calls.
type fakePush struct {
	supported   bool
	permission  client.PermissionState
	promptGrant bool
	promptCount int

	sub          *client.PushSubscription
	subscribeKey []byte
	subscribeErr error

	calls []string
}

func newFakePush() *fakePush {
	return &fakePush{
		supported:   true,
		permission:  client.PermissionDefault,
		promptGrant: true,
	}
}

func (p *fakePush) Supported() bool { return p.supported }

func (p *fakePush) PermissionState(ctx context.Context) (client.PermissionState, error) {
	return p.permission, nil
}

func (p *fakePush) RequestPermission(ctx context.Context) (client.PermissionState, error) {
	p.promptCount++
	if p.promptGrant {
		p.permission = client.PermissionGranted
	} else {
		p.permission = client.PermissionDenied
	}
	return p.permission, nil
}

func (p *fakePush) Subscription(ctx context.Context) (*client.PushSubscription, error) {
	return p.sub, nil
}

func (p *fakePush) Subscribe(ctx context.Context, appServerKey []byte) (*client.PushSubscription, error) {
	p.calls = append(p.calls, "subscribe")
	if p.subscribeErr != nil {
		return nil, p.subscribeErr
	}
	p.subscribeKey = appServerKey
	p.sub = &client.PushSubscription{
		Endpoint: "https://push.example.com/send/fresh",
		P256dh:   "p256dh-material",
		Auth:     "auth-material",
	}
	return p.sub, nil
}

func (p *fakePush) Unsubscribe(ctx context.Context) error {
	p.calls = append(p.calls, "unsubscribe")
	p.sub = nil
	return nil
}

// fakeStore records persistence calls.
type fakeStore struct {
	saved   []*client.PushSubscription
	removed []string
	saveErr error
}

func (s *fakeStore) Save(ctx context.Context, sub *client.PushSubscription) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, sub)
	return nil
}

func (s *fakeStore) Remove(ctx context.Context, endpoint string) error {
	s.removed = append(s.removed, endpoint)
	return nil
}

func controlledGuard() *client.ControllerGuard {
	bridge := newFakeSWBridge()
	bridge.controller = workerScript
	return client.NewControllerGuard(client.GuardConfig{
		Bridge:    bridge,
		ScriptURL: workerScript,
		Logger:    zerolog.Nop(),
	})
}

func newManager(push *fakePush, store *fakeStore) *client.Manager {
	return client.NewManager(client.ManagerConfig{
		Push:      push,
		Guard:     controlledGuard(),
		Store:     store,
		Logger:    zerolog.Nop(),
		PublicKey: testPublicKey(),
	})
}

func TestManager_Enable(t *testing.T) {
	push := newFakePush()
	store := &fakeStore{}
	mgr := newManager(push, store)

	sub, err := mgr.Enable(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sub)

	// The key handed to the Push API is the decoded 65-byte point, not the
	// base64 text.
	require.Len(t, push.subscribeKey, vapid.PublicKeyLength)
	assert.Equal(t, byte(0x04), push.subscribeKey[0])

	require.Len(t, store.saved, 1)
	assert.Equal(t, sub.Endpoint, store.saved[0].Endpoint)
	assert.Equal(t, 1, push.promptCount)
}

func TestManager_Enable_ReplacesExistingSubscription(t *testing.T) {
	push := newFakePush()
	push.permission = client.PermissionGranted
	push.sub = &client.PushSubscription{Endpoint: "https://push.example.com/send/stale"}
	store := &fakeStore{}
	mgr := newManager(push, store)

	sub, err := mgr.Enable(context.Background())
	require.NoError(t, err)

	// The stale subscription is dropped before the fresh subscribe.
	assert.Equal(t, []string{"unsubscribe", "subscribe"}, push.calls)
	assert.Equal(t, "https://push.example.com/send/fresh", sub.Endpoint)
}

func TestManager_Enable_Idempotent(t *testing.T) {
	push := newFakePush()
	store := &fakeStore{}
	mgr := newManager(push, store)

	_, err := mgr.Enable(context.Background())
	require.NoError(t, err)

	_, err = mgr.Enable(context.Background())
	require.NoError(t, err)

	// Second run replaces rather than stacking: one unsubscribe between
	// the two subscribes, and the store sees upserts it can collapse.
	assert.Equal(t, []string{"subscribe", "unsubscribe", "subscribe"}, push.calls)
	assert.Len(t, store.saved, 2)
	assert.Equal(t, 1, push.promptCount)
}

func TestManager_Enable_Unsupported(t *testing.T) {
	push := newFakePush()
	push.supported = false
	mgr := newManager(push, &fakeStore{})

	_, err := mgr.Enable(context.Background())
	assert.ErrorIs(t, err, client.ErrUnsupported)
}

func TestManager_Enable_DenialIsRemembered(t *testing.T) {
	push := newFakePush()
	push.promptGrant = false
	mgr := newManager(push, &fakeStore{})

	_, err := mgr.Enable(context.Background())
	assert.ErrorIs(t, err, client.ErrPermissionBlocked)
	assert.Equal(t, 1, push.promptCount)

	// A second attempt fails fast without prompting again.
	_, err = mgr.Enable(context.Background())
	assert.ErrorIs(t, err, client.ErrPermissionBlocked)
	assert.Equal(t, 1, push.promptCount)
}

func TestManager_Enable_UncontrolledWorker(t *testing.T) {
	push := newFakePush()

	bridge := newFakeSWBridge()
	guard := client.NewControllerGuard(client.GuardConfig{
		Bridge:            bridge,
		ScriptURL:         workerScript,
		Logger:            zerolog.Nop(),
		ActivationTimeout: 20 * time.Millisecond,
	})

	mgr := client.NewManager(client.ManagerConfig{
		Push:      push,
		Guard:     guard,
		Store:     &fakeStore{},
		Logger:    zerolog.Nop(),
		PublicKey: testPublicKey(),
	})

	_, err := mgr.Enable(context.Background())
	assert.ErrorIs(t, err, client.ErrNoController)

	var subErr *client.SubscribeError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "service worker activation", subErr.Step)

	// The Push API is never touched without a controlling worker.
	assert.Empty(t, push.calls)
}

func TestManager_Enable_BadPublicKey(t *testing.T) {
	push := newFakePush()
	mgr := client.NewManager(client.ManagerConfig{
		Push:      push,
		Guard:     controlledGuard(),
		Store:     &fakeStore{},
		Logger:    zerolog.Nop(),
		PublicKey: vapid.Encode(make([]byte, 10)),
	})

	_, err := mgr.Enable(context.Background())
	assert.ErrorIs(t, err, vapid.ErrInvalidKeyLength)

	// The key failed validation before any subscribe happened.
	assert.Empty(t, push.calls)
}

func TestManager_Enable_PersistFailure(t *testing.T) {
	push := newFakePush()
	store := &fakeStore{saveErr: errors.New("backend down")}
	mgr := newManager(push, store)

	_, err := mgr.Enable(context.Background())

	var subErr *client.SubscribeError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "persist", subErr.Step)
}

func TestManager_Status(t *testing.T) {
	ctx := context.Background()

	t.Run("unsupported", func(t *testing.T) {
		push := newFakePush()
		push.supported = false
		assert.Equal(t, client.StatusUnsupported, newManager(push, &fakeStore{}).Status(ctx))
	})

	t.Run("blocked", func(t *testing.T) {
		push := newFakePush()
		push.permission = client.PermissionDenied
		assert.Equal(t, client.StatusBlocked, newManager(push, &fakeStore{}).Status(ctx))
	})

	t.Run("idle", func(t *testing.T) {
		push := newFakePush()
		assert.Equal(t, client.StatusIdle, newManager(push, &fakeStore{}).Status(ctx))
	})

	t.Run("ready", func(t *testing.T) {
		push := newFakePush()
		push.permission = client.PermissionGranted
		assert.Equal(t, client.StatusReady, newManager(push, &fakeStore{}).Status(ctx))
	})

	t.Run("subscribed", func(t *testing.T) {
		push := newFakePush()
		push.permission = client.PermissionGranted
		push.sub = &client.PushSubscription{Endpoint: "https://push.example.com/send/x"}
		assert.Equal(t, client.StatusSubscribed, newManager(push, &fakeStore{}).Status(ctx))
	})
}

func TestManager_Disable(t *testing.T) {
	push := newFakePush()
	push.permission = client.PermissionGranted
	push.sub = &client.PushSubscription{Endpoint: "https://push.example.com/send/active"}
	store := &fakeStore{}
	mgr := newManager(push, store)

	require.NoError(t, mgr.Disable(context.Background()))

	assert.Equal(t, []string{"unsubscribe"}, push.calls)
	assert.Equal(t, []string{"https://push.example.com/send/active"}, store.removed)

	// No subscription left; a second disable is a no-op.
	require.NoError(t, mgr.Disable(context.Background()))
	assert.Len(t, store.removed, 1)
}
