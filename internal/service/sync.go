package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/sinaabedii/arian-etc-sub001/pkg/errors"
	"github.com/sinaabedii/arian-etc-sub001/pkg/logger"
)

const (
	defaultCallTimeout = 10 * time.Second
	defaultPageSize    = 50
	persistTimeout     = 5 * time.Second
)

// Options configures a cart or wishlist service.
type Options struct {
	SessionID   string
	Policy      SyncPolicy
	CallTimeout time.Duration
	PageSize    int
}

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = defaultCallTimeout
	}
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	return o
}

// syncCore holds what the cart and wishlist services share: the session
// lifecycle, the generation counter that marks in-flight results stale, and
// the loading/error status of refreshes.
type syncCore struct {
	resource  string
	sessionID string
	policy    SyncPolicy
	timeout   time.Duration
	pageSize  int
	logger    *slog.Logger

	lifecycle context.Context
	cancel    context.CancelFunc

	genMu sync.Mutex
	gen   uint64

	statusMu sync.RWMutex
	loading  int
	lastErr  string
}

func newSyncCore(resource string, opts Options, log *slog.Logger) *syncCore {
	opts = opts.withDefaults()
	lifecycle, cancel := context.WithCancel(context.Background())
	return &syncCore{
		resource:  resource,
		sessionID: opts.SessionID,
		policy:    opts.Policy,
		timeout:   opts.CallTimeout,
		pageSize:  opts.PageSize,
		logger:    log.With(slog.String("resource", resource), slog.String("session_id", opts.SessionID)),
		lifecycle: lifecycle,
		cancel:    cancel,
	}
}

// generation returns the current generation. Capture it before a remote
// call and hand it to applyIfCurrent afterwards.
func (c *syncCore) generation() uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.gen
}

// applyIfCurrent runs fn only if no reset happened since gen was captured.
// A reset cannot interleave with fn.
func (c *syncCore) applyIfCurrent(ctx context.Context, gen uint64, op string, fn func()) bool {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.gen != gen {
		syncStaleDropped.WithLabelValues(c.resource).Inc()
		c.log(ctx).DebugContext(ctx, "dropping stale remote result", slog.String("operation", op))
		return false
	}
	fn()
	return true
}

// reset bumps the generation and runs fn under the same lock, so no result
// from before the reset can land after it.
func (c *syncCore) reset(fn func()) {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	c.gen++
	if fn != nil {
		fn()
	}
}

// callContext derives the context for one remote call from the caller, the
// session lifecycle and the per-call timeout.
func (c *syncCore) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	stop := context.AfterFunc(c.lifecycle, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *syncCore) beginRefresh() {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.loading++
	c.lastErr = ""
}

func (c *syncCore) endRefresh(err error) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.loading--
	if err != nil {
		c.lastErr = err.Error()
	}
}

// Loading reports whether a refresh is in flight.
func (c *syncCore) Loading() bool {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.loading > 0
}

// LastError returns the message of the last failed refresh, or "".
func (c *syncCore) LastError() string {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.lastErr
}

// shutdown marks every in-flight call stale and cancels it.
func (c *syncCore) shutdown() {
	c.reset(nil)
	c.cancel()
}

func (c *syncCore) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, c.logger)
}

// persistContext bounds a mirror write that runs inside a store listener.
func (c *syncCore) persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), persistTimeout)
}

// unauthenticated reports whether err means the visitor is signed out, in
// which case the store runs local-only.
func unauthenticated(err error) bool {
	return apperrors.IsUnauthorized(err)
}
