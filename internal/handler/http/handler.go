package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sinaabedii/arian-etc-sub001/internal/service"
	"github.com/sinaabedii/arian-etc-sub001/pkg/httputil"
	"github.com/sinaabedii/arian-etc-sub001/pkg/middleware"
)

// Handler serves the storefront sync API on top of a session registry.
type Handler struct {
	registry *service.Registry
	logger   *slog.Logger
}

// NewHandler creates the sync API handler.
func NewHandler(registry *service.Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// withSession resolves the request's sync session, creating it on first use.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.registry.Get(r.Context(), r.Header.Get(middleware.SessionIDHeader))
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, err, h.logger)
}
