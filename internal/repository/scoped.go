package repository

import "context"

// Scoped prefixes every key with "<namespace>:" so one backend can hold the
// mirrors of many sessions.
type Scoped struct {
	inner     KVStore
	namespace string
}

// NewScoped wraps inner under namespace.
func NewScoped(inner KVStore, namespace string) *Scoped {
	return &Scoped{inner: inner, namespace: namespace}
}

func (s *Scoped) key(k string) string {
	return s.namespace + ":" + k
}

func (s *Scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return s.inner.Get(ctx, s.key(key))
}

func (s *Scoped) Set(ctx context.Context, key string, value []byte) error {
	return s.inner.Set(ctx, s.key(key), value)
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.key(key))
}

// Namespace returns the key prefix without the separator.
func (s *Scoped) Namespace() string {
	return s.namespace
}
