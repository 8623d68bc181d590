package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sinaabedii/arian-etc-sub001/internal/service"
	"github.com/sinaabedii/arian-etc-sub001/pkg/httputil"
	"github.com/sinaabedii/arian-etc-sub001/pkg/middleware"
)

type contextKey string

const sessionKey contextKey = "sync_session"

// SessionID assigns a fresh session id to requests that carry none and
// echoes the id back in the response header. Mount it before
// middleware.RequestLogger so the id reaches request logs.
func SessionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.SessionIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(middleware.SessionIDHeader, id)
		}
		w.Header().Set(middleware.SessionIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// sessionFromContext returns the session resolved by withSession.
func sessionFromContext(ctx context.Context) *service.Session {
	sess, _ := ctx.Value(sessionKey).(*service.Session)
	return sess
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{Error: &httputil.ErrorResponse{
					Code:    "UNSUPPORTED_MEDIA_TYPE",
					Message: "Content-Type must be application/json",
				}})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// limiterSweepEvery is how many Allow calls pass between sweeps of idle limiters.
const limiterSweepEvery = 1024

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SessionLimiter applies a token bucket per session id.
type SessionLimiter struct {
	rps   rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]*limiterEntry
	calls   int
}

// NewSessionLimiter allows rps requests per second per session with the
// given burst. Buckets unused for idle are dropped.
func NewSessionLimiter(rps float64, burst int, idle time.Duration) *SessionLimiter {
	return &SessionLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		entries: make(map[string]*limiterEntry),
	}
}

// Allow reports whether a request for session id may proceed now. Ids the
// registry would reject get no bucket and pass through to be refused there.
func (l *SessionLimiter) Allow(id string) bool {
	if !service.ValidSessionID(id) {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%limiterSweepEvery == 0 {
		l.sweep(now)
	}

	e, ok := l.entries[id]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[id] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *SessionLimiter) sweep(now time.Time) {
	if l.idle <= 0 {
		return
	}
	for id, e := range l.entries {
		if now.Sub(e.lastSeen) > l.idle {
			delete(l.entries, id)
		}
	}
}

// Middleware rejects requests over the session's budget with 429.
func (l *SessionLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r.Header.Get(middleware.SessionIDHeader)) {
			w.Header().Set("Retry-After", "1")
			httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{Error: &httputil.ErrorResponse{
				Code:    "RATE_LIMITED",
				Message: "too many requests for this session",
			}})
			return
		}
		next.ServeHTTP(w, r)
	})
}
