package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sinaabedii/arian-etc-sub001/internal/remote"
	"github.com/sinaabedii/arian-etc-sub001/internal/repository"
	"github.com/sinaabedii/arian-etc-sub001/internal/session"
	apperrors "github.com/sinaabedii/arian-etc-sub001/pkg/errors"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// RemoteAPI is the backend surface one sync session talks to.
type RemoteAPI interface {
	remote.CartAPI
	remote.WishlistAPI
}

// APIFactory builds the backend client of a session around its credential.
type APIFactory func(tokens remote.TokenSource) RemoteAPI

// RegistryConfig configures session creation and eviction.
type RegistryConfig struct {
	IdleTTL         time.Duration
	JanitorInterval time.Duration
	MountTimeout    time.Duration
	CallTimeout     time.Duration
	PageSize        int
	CartPolicy      SyncPolicy
	WishlistPolicy  SyncPolicy
}

// Session is one visitor's sync state: credential, cart and wishlist.
type Session struct {
	ID       string
	Auth     *session.Manager
	Cart     *CartService
	Wishlist *WishlistService

	ready    chan struct{}
	lastSeen time.Time
}

// Logout forgets the credential and empties both stores.
func (s *Session) Logout(ctx context.Context) error {
	var errs []error
	if err := s.Auth.ClearAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if _, err := s.Cart.ClearCart(); err != nil {
		errs = append(errs, fmt.Errorf("clear cart: %w", err))
	}
	if _, err := s.Wishlist.ClearWishlist(); err != nil {
		errs = append(errs, fmt.Errorf("clear wishlist: %w", err))
	}
	return errors.Join(errs...)
}

// Refresh reloads cart and wishlist from the backend concurrently. A
// failure of one store does not cancel the other.
func (s *Session) Refresh(ctx context.Context) error {
	var (
		g                    errgroup.Group
		cartErr, wishlistErr error
	)
	g.Go(func() error {
		cartErr = s.Cart.RefreshFromServer(ctx)
		return nil
	})
	g.Go(func() error {
		wishlistErr = s.Wishlist.RefreshFromServer(ctx)
		return nil
	})
	_ = g.Wait()
	return errors.Join(cartErr, wishlistErr)
}

func (s *Session) close() {
	s.Cart.Close()
	s.Wishlist.Close()
}

// Registry holds the live sync sessions, creating them on first use and
// evicting them once idle.
type Registry struct {
	cfg     RegistryConfig
	backend repository.KVStore
	newAPI  APIFactory
	events  EventPublisher
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates an empty registry. backend holds the persisted
// mirrors of all sessions, each under its own key namespace.
func NewRegistry(cfg RegistryConfig, backend repository.KVStore, newAPI APIFactory, events EventPublisher, logger *slog.Logger) *Registry {
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = time.Minute
	}
	if cfg.MountTimeout <= 0 {
		cfg.MountTimeout = 15 * time.Second
	}
	if events == nil {
		events = NoopPublisher{}
	}
	return &Registry{
		cfg:      cfg,
		backend:  backend,
		newAPI:   newAPI,
		events:   events,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// ValidSessionID reports whether id is usable as a session id.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Get returns the session for id, creating and mounting it on first use.
// Mounting hydrates both stores and refreshes them from the backend
// concurrently; callers wait until it is done.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	if !ValidSessionID(id) {
		return nil, apperrors.InvalidInput("invalid session id")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, apperrors.ServiceUnavailable("shutting down")
	}
	sess, ok := r.sessions[id]
	if ok {
		sess.lastSeen = r.now()
		r.mu.Unlock()
	} else {
		sess = r.newSession(id)
		r.sessions[id] = sess
		activeSessions.Inc()
		r.mu.Unlock()
		go r.mount(ctx, sess)
	}

	select {
	case <-sess.ready:
		return sess, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) newSession(id string) *Session {
	kv := repository.NewScoped(r.backend, id)
	auth := session.NewManager(kv, repository.NewMemoryStore(), r.logger)
	api := r.newAPI(auth)

	opts := func(p SyncPolicy) Options {
		return Options{SessionID: id, Policy: p, CallTimeout: r.cfg.CallTimeout, PageSize: r.cfg.PageSize}
	}
	return &Session{
		ID:       id,
		Auth:     auth,
		Cart:     NewCartService(kv, api, r.events, r.logger, opts(r.cfg.CartPolicy)),
		Wishlist: NewWishlistService(kv, api, r.events, r.logger, opts(r.cfg.WishlistPolicy)),
		ready:    make(chan struct{}),
		lastSeen: r.now(),
	}
}

// mount runs detached from the request that created the session so a
// client hanging up does not leave the session half loaded.
func (r *Registry) mount(ctx context.Context, sess *Session) {
	defer close(sess.ready)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.MountTimeout)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sess.Cart.Mount(gctx)
		return nil
	})
	g.Go(func() error {
		sess.Wishlist.Mount(gctx)
		return nil
	})
	_ = g.Wait()

	r.logger.DebugContext(ctx, "session mounted",
		slog.String("session_id", sess.ID),
		slog.Duration("duration", time.Since(start)),
	)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict closes and forgets the session for id, if any.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		activeSessions.Dec()
	}
	r.mu.Unlock()

	if ok {
		<-sess.ready
		sess.close()
	}
}

// EvictIdle closes sessions unused for longer than the idle TTL and
// returns how many were evicted.
func (r *Registry) EvictIdle() int {
	if r.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	var idle []*Session
	for id, sess := range r.sessions {
		if sess.lastSeen.Before(cutoff) {
			idle = append(idle, sess)
			delete(r.sessions, id)
			activeSessions.Dec()
		}
	}
	r.mu.Unlock()

	for _, sess := range idle {
		<-sess.ready
		sess.close()
	}
	return len(idle)
}

// Run evicts idle sessions every janitor interval until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(); n > 0 {
				r.logger.Info("evicted idle sessions", slog.Int("count", n))
			}
		}
	}
}

// Shutdown closes every session and rejects new ones.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	activeSessions.Sub(float64(len(sessions)))
	r.mu.Unlock()

	for _, sess := range sessions {
		<-sess.ready
		sess.close()
	}
}
