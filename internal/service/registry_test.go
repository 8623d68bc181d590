package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sinaabedii/arian-etc-sub001/internal/domain"
	"github.com/sinaabedii/arian-etc-sub001/internal/remote"
	"github.com/sinaabedii/arian-etc-sub001/internal/repository"
	apperrors "github.com/sinaabedii/arian-etc-sub001/pkg/errors"
)

// signedOutAPI answers every listing as a signed-out visitor.
func signedOutAPI() *mockAPI {
	api := &mockAPI{}
	api.On("GetCart", mock.Anything, mock.Anything, mock.Anything).Return(nil, apperrors.Unauthorized("no credential"))
	api.On("GetWishlist", mock.Anything, mock.Anything, mock.Anything).Return(nil, apperrors.Unauthorized("no credential"))
	return api
}

type registryFixture struct {
	reg     *Registry
	backend *repository.MemoryStore
	mu      sync.Mutex
	tokens  []remote.TokenSource
}

func newRegistryFixture(t *testing.T, cfg RegistryConfig) *registryFixture {
	t.Helper()
	f := &registryFixture{backend: repository.NewMemoryStore()}
	if cfg.CartPolicy == (SyncPolicy{}) {
		cfg.CartPolicy = DefaultCartPolicy()
	}
	if cfg.WishlistPolicy == (SyncPolicy{}) {
		cfg.WishlistPolicy = DefaultWishlistPolicy()
	}
	f.reg = NewRegistry(cfg, f.backend, func(tokens remote.TokenSource) RemoteAPI {
		f.mu.Lock()
		f.tokens = append(f.tokens, tokens)
		f.mu.Unlock()
		return signedOutAPI()
	}, nil, newTestLogger())
	return f
}

func TestRegistry_GetCreatesOnce(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newRegistryFixture(t, RegistryConfig{})
	defer f.reg.Shutdown()
	ctx := context.Background()

	a, err := f.reg.Get(ctx, "sess-1")
	require.NoError(t, err)
	b, err := f.reg.Get(ctx, "sess-1")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, f.reg.Len())
	assert.Len(t, f.tokens, 1)
}

func TestRegistry_GetRejectsBadID(t *testing.T) {
	f := newRegistryFixture(t, RegistryConfig{})

	for _, id := range []string{"", "has space", "semi;colon", string(make([]byte, 200))} {
		_, err := f.reg.Get(context.Background(), id)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "id %q", id)
	}
	assert.Equal(t, 0, f.reg.Len())
}

func TestRegistry_MountHydratesFromBackend(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newRegistryFixture(t, RegistryConfig{})
	defer f.reg.Shutdown()
	ctx := context.Background()

	scoped := repository.NewScoped(f.backend, "sess-2")
	require.NoError(t, CartCodec.Save(ctx, scoped, []domain.CartItem{{ID: "7", Price: 10, Quantity: 3}}))
	require.NoError(t, WishlistCodec.Save(ctx, scoped, []domain.WishlistItem{{ID: "12", ProductID: 7}}))

	sess, err := f.reg.Get(ctx, "sess-2")
	require.NoError(t, err)

	assert.Equal(t, 3, sess.Cart.GetItemQuantity("7"))
	assert.True(t, sess.Wishlist.IsInWishlist(7))
	assert.False(t, sess.Auth.IsAuthenticated(ctx))
}

func TestRegistry_SessionsAreIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newRegistryFixture(t, RegistryConfig{})
	defer f.reg.Shutdown()
	ctx := context.Background()

	a, err := f.reg.Get(ctx, "a")
	require.NoError(t, err)
	b, err := f.reg.Get(ctx, "b")
	require.NoError(t, err)

	_, err = a.Cart.AddItem(headphones())
	require.NoError(t, err)

	assert.True(t, a.Cart.IsInCart("7"))
	assert.False(t, b.Cart.IsInCart("7"))
}

func TestRegistry_Logout(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newRegistryFixture(t, RegistryConfig{})
	defer f.reg.Shutdown()
	ctx := context.Background()

	sess, err := f.reg.Get(ctx, "sess-3")
	require.NoError(t, err)
	require.NoError(t, sess.Auth.SetToken(ctx, "opaque", true))
	_, _ = sess.Cart.AddItem(headphones())
	_, _, _ = sess.Wishlist.AddToWishlist(lamp())

	require.NoError(t, sess.Logout(ctx))

	assert.False(t, sess.Auth.IsAuthenticated(ctx))
	assert.Empty(t, sess.Cart.State().Items)
	assert.Empty(t, sess.Wishlist.State().Items)
}

func TestSession_RefreshFailureStaysInItsStore(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	api := &mockAPI{}
	api.On("GetCart", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.ServiceUnavailable("backend 500"))

	var wishlistCtxErr error
	api.On("GetWishlist", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			callCtx := args.Get(0).(context.Context)
			select {
			case <-callCtx.Done():
			case <-time.After(50 * time.Millisecond):
			}
			wishlistCtxErr = callCtx.Err()
		}).
		Return([]domain.WishlistItem{lamp()}, nil)

	kv := repository.NewMemoryStore()
	sess := &Session{
		ID:       "sess-refresh",
		Cart:     NewCartService(kv, api, nil, newTestLogger(), Options{SessionID: "sess-refresh", Policy: DefaultCartPolicy()}),
		Wishlist: NewWishlistService(kv, api, nil, newTestLogger(), Options{SessionID: "sess-refresh", Policy: DefaultWishlistPolicy()}),
	}
	defer sess.close()

	err := sess.Refresh(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)

	assert.NoError(t, wishlistCtxErr)
	assert.NotEmpty(t, sess.Cart.LastError())
	assert.Empty(t, sess.Wishlist.LastError())
	require.Len(t, sess.Wishlist.State().Items, 1)
	assert.Equal(t, "12", sess.Wishlist.State().Items[0].ID)
}

func TestRegistry_EvictIdle(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newRegistryFixture(t, RegistryConfig{IdleTTL: time.Minute})
	defer f.reg.Shutdown()
	ctx := context.Background()

	now := time.Now()
	f.reg.now = func() time.Time { return now }

	_, err := f.reg.Get(ctx, "old")
	require.NoError(t, err)
	now = now.Add(45 * time.Second)
	_, err = f.reg.Get(ctx, "fresh")
	require.NoError(t, err)
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, f.reg.EvictIdle())
	assert.Equal(t, 1, f.reg.Len())

	sess, err := f.reg.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", sess.ID)
}

func TestRegistry_EvictClosesSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newRegistryFixture(t, RegistryConfig{})
	defer f.reg.Shutdown()

	sess, err := f.reg.Get(context.Background(), "gone")
	require.NoError(t, err)
	f.reg.Evict("gone")

	_, err = sess.Cart.AddItem(headphones())
	assert.Error(t, err)
	assert.Equal(t, 0, f.reg.Len())
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newRegistryFixture(t, RegistryConfig{IdleTTL: time.Millisecond, JanitorInterval: 5 * time.Millisecond})

	_, err := f.reg.Get(context.Background(), "short-lived")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.reg.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return f.reg.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	f.reg.Shutdown()
}

func TestRegistry_ShutdownRejectsNewSessions(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newRegistryFixture(t, RegistryConfig{})

	_, err := f.reg.Get(context.Background(), "sess")
	require.NoError(t, err)
	f.reg.Shutdown()

	assert.Equal(t, 0, f.reg.Len())
	_, err = f.reg.Get(context.Background(), "sess")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}
