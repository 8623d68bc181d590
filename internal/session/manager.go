package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sinaabedii/arian-etc-sub001/internal/domain"
	"github.com/sinaabedii/arian-etc-sub001/internal/repository"
)

// Manager owns the visitor's credential and profile. Values saved with
// rememberMe go to the persistent store; the rest live in a session-only
// store that is dropped with the sync session.
type Manager struct {
	persistent repository.KVStore
	ephemeral  repository.KVStore
	logger     *slog.Logger
	now        func() time.Time
}

// NewManager creates a Manager over the two stores.
func NewManager(persistent, ephemeral repository.KVStore, logger *slog.Logger) *Manager {
	return &Manager{
		persistent: persistent,
		ephemeral:  ephemeral,
		logger:     logger,
		now:        time.Now,
	}
}

func (m *Manager) stores() []repository.KVStore {
	return []repository.KVStore{m.persistent, m.ephemeral}
}

func (m *Manager) target(rememberMe bool) (write, other repository.KVStore) {
	if rememberMe {
		return m.persistent, m.ephemeral
	}
	return m.ephemeral, m.persistent
}

// Token returns the stored bearer token, or "" when there is none or it has
// expired. Storage failures are returned as errors.
func (m *Manager) Token(ctx context.Context) (string, error) {
	for _, s := range m.stores() {
		raw, err := s.Get(ctx, repository.KeyAuthToken)
		if err != nil {
			if repository.IsNotFound(err) {
				continue
			}
			return "", fmt.Errorf("read %s: %w", repository.KeyAuthToken, err)
		}
		token := string(raw)
		if token == "" {
			continue
		}
		if m.expired(token) {
			return "", nil
		}
		return token, nil
	}
	return "", nil
}

// SetToken stores token. Saving under one mode removes a copy saved under
// the other.
func (m *Manager) SetToken(ctx context.Context, token string, rememberMe bool) error {
	write, other := m.target(rememberMe)
	if err := write.Set(ctx, repository.KeyAuthToken, []byte(token)); err != nil {
		return fmt.Errorf("save %s: %w", repository.KeyAuthToken, err)
	}
	if err := other.Delete(ctx, repository.KeyAuthToken); err != nil {
		return fmt.Errorf("clear %s: %w", repository.KeyAuthToken, err)
	}
	return nil
}

// IsAuthenticated reports whether a usable token is stored. Storage errors
// count as signed out.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	token, err := m.Token(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to read credential", slog.String("error", err.Error()))
		return false
	}
	return token != ""
}

// GetUserData returns the stored profile, or nil when none is stored. A
// corrupt value is logged and treated as absent.
func (m *Manager) GetUserData(ctx context.Context) (*domain.User, error) {
	for _, s := range m.stores() {
		raw, err := s.Get(ctx, repository.KeyUserData)
		if err != nil {
			if repository.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", repository.KeyUserData, err)
		}
		var user domain.User
		if err := json.Unmarshal(raw, &user); err != nil {
			m.logger.WarnContext(ctx, "discarding unreadable user data", slog.String("error", err.Error()))
			continue
		}
		return &user, nil
	}
	return nil, nil
}

// SetUserData stores the profile.
func (m *Manager) SetUserData(ctx context.Context, user domain.User, rememberMe bool) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	write, other := m.target(rememberMe)
	if err := write.Set(ctx, repository.KeyUserData, data); err != nil {
		return fmt.Errorf("save %s: %w", repository.KeyUserData, err)
	}
	if err := other.Delete(ctx, repository.KeyUserData); err != nil {
		return fmt.Errorf("clear %s: %w", repository.KeyUserData, err)
	}
	return nil
}

// ClearAll removes the credential and profile from both stores.
func (m *Manager) ClearAll(ctx context.Context) error {
	var errs []error
	for _, s := range m.stores() {
		for _, key := range []string{repository.KeyAuthToken, repository.KeyUserData} {
			if err := s.Delete(ctx, key); err != nil {
				errs = append(errs, fmt.Errorf("clear %s: %w", key, err))
			}
		}
	}
	return errors.Join(errs...)
}

// expired reports whether a JWT-shaped token carries an exp claim in the
// past. Signatures are not checked; the backend owns verification. Opaque
// tokens never expire locally.
func (m *Manager) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !m.now().Before(exp.Time)
}
