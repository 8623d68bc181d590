package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sinaabedii/arian-etc-sub001/pkg/logger"
)

// SessionIDHeader selects the storefront sync session a request acts on.
const SessionIDHeader = "X-Session-ID"

type sessionIDKey struct{}

// SessionIDFromContext returns the session ID stored by RequestLogger.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, session_id, trace_id and span_id. Mount it after
// RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if id := r.Header.Get(SessionIDHeader); id != "" {
				ctx = context.WithValue(ctx, sessionIDKey{}, id)
				ctx = logger.WithSessionID(ctx, id)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
