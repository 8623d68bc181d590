package repository

import (
	"context"
	"errors"

	apperrors "github.com/sinaabedii/arian-etc-sub001/pkg/errors"
)

// Keys persisted per sync session.
const (
	KeyCart      = "cart"
	KeyWishlist  = "wishlist"
	KeyAuthToken = "auth_token"
	KeyUserData  = "user_data"
)

// KVStore is the persisted mirror behind the in-memory stores: string keys
// to opaque values. Get on a missing key returns an error matching
// apperrors.ErrNotFound. Last writer wins; there is no cross-process locking.
type KVStore interface {
	// Get returns the value stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by backends that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

// NotFound is the error every backend returns for a missing key.
func NotFound(key string) error {
	return apperrors.NotFound("key", key)
}
