package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sinaabedii/arian-etc-sub001/internal/repository"
	"github.com/sinaabedii/arian-etc-sub001/pkg/database"
)

const keyPrefix = "storefront:"

// KVStore implements repository.KVStore on Redis strings.
type KVStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewKVStore creates a Redis-backed store. A zero ttl keeps values until
// they are deleted.
func NewKVStore(client *redis.Client, ttl time.Duration) *KVStore {
	return &KVStore{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the value stored under key.
func (s *KVStore) Get(ctx context.Context, key string) (_ []byte, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "storage.get", "GET")
	defer func() { end(err) }()

	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.NotFound(key)
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Set stores value under key with the configured TTL.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "storage.set", "SET")
	defer func() { end(err) }()

	if err = s.client.Set(ctx, keyPrefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *KVStore) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemRedis, "storage.delete", "DEL")
	defer func() { end(err) }()

	if err = s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection for readiness probes.
func (s *KVStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
