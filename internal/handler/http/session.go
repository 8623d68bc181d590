package http

import (
	"log/slog"
	"net/http"

	"github.com/sinaabedii/arian-etc-sub001/internal/domain"
	"github.com/sinaabedii/arian-etc-sub001/internal/service"
	"github.com/sinaabedii/arian-etc-sub001/pkg/httputil"
	"github.com/sinaabedii/arian-etc-sub001/pkg/validator"
)

// UserRequest is the profile stored next to the token.
type UserRequest struct {
	ID        int64  `json:"id" validate:"gt=0"`
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
	Phone     string `json:"phone,omitempty" validate:"max=32"`
	Role      string `json:"role,omitempty" validate:"max=32"`
}

// SignInRequest stores a credential. RememberMe keeps it in the persistent
// store instead of the ephemeral one.
type SignInRequest struct {
	Token      string      `json:"token" validate:"required"`
	User       UserRequest `json:"user" validate:"required"`
	RememberMe bool        `json:"rememberMe"`
}

// SessionResponse reports the credential state of a session.
type SessionResponse struct {
	ID            string       `json:"id"`
	Authenticated bool         `json:"authenticated"`
	User          *domain.User `json:"user,omitempty"`
}

func (h *Handler) sessionResponse(r *http.Request, sess *service.Session) SessionResponse {
	ctx := r.Context()
	resp := SessionResponse{ID: sess.ID, Authenticated: sess.Auth.IsAuthenticated(ctx)}
	if user, err := sess.Auth.GetUserData(ctx); err == nil {
		resp.User = user
	}
	return resp
}

// GetSession handles GET /api/v1/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	httputil.WriteData(w, http.StatusOK, h.sessionResponse(r, sess))
}

// SignIn handles PUT /api/v1/session. Cart and wishlist are reloaded from
// the backend under the new credential.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	ctx := r.Context()
	sess := sessionFromContext(ctx)
	if err := sess.Auth.SetToken(ctx, req.Token, req.RememberMe); err != nil {
		h.writeError(w, r, err)
		return
	}
	user := domain.User{
		ID:        req.User.ID,
		Email:     req.User.Email,
		FirstName: req.User.FirstName,
		LastName:  req.User.LastName,
		Phone:     req.User.Phone,
		Role:      req.User.Role,
	}
	if err := sess.Auth.SetUserData(ctx, user, req.RememberMe); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := sess.Refresh(ctx); err != nil {
		h.logger.DebugContext(ctx, "refresh after sign-in failed", slog.String("error", err.Error()))
	}
	httputil.WriteData(w, http.StatusOK, h.sessionResponse(r, sess))
}

// SignOut handles DELETE /api/v1/session. It clears the credential, the
// cart and the wishlist.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := sess.Logout(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
