package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8010, cfg.HTTPPort)
	assert.Equal(t, StorageRedis, cfg.Storage)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
	assert.Equal(t, 50, cfg.PageSize)
	assert.True(t, cfg.CartRollbackOnFailure)
	assert.False(t, cfg.CartOverwriteOnEmptyRemote)
	assert.False(t, cfg.WishlistRollbackOnFailure)
	assert.True(t, cfg.WishlistOverwriteOnEmptyRemote)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_PolicyOverrides(t *testing.T) {
	t.Setenv("WISHLIST_ROLLBACK_ON_FAILURE", "true")
	t.Setenv("CART_OVERWRITE_ON_EMPTY_REMOTE", "true")

	cfg, err := Load()

	require.NoError(t, err)
	assert.True(t, cfg.WishlistRollbackOnFailure)
	assert.True(t, cfg.CartOverwriteOnEmptyRemote)
}

func TestLoad_KafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"port", "HTTP_PORT", "0", "invalid HTTP port"},
		{"backend url", "BACKEND_URL", "not-a-url", "BACKEND_URL must be an absolute URL"},
		{"storage", "STORAGE_BACKEND", "mongo", "unknown STORAGE_BACKEND"},
		{"log format", "LOG_FORMAT", "xml", "unknown LOG_FORMAT"},
		{"page size", "SYNC_PAGE_SIZE", "500", "SYNC_PAGE_SIZE must be between 1 and 100"},
		{"sample rate", "OTEL_SAMPLE_RATE", "2.0", "OTEL_SAMPLE_RATE must be between 0.0 and 1.0"},
		{"call timeout", "SYNC_CALL_TIMEOUT", "-1s", "SYNC_CALL_TIMEOUT must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MalformedDuration(t *testing.T) {
	t.Setenv("SESSION_IDLE_TTL", "soon")

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
}
