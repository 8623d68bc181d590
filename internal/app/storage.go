package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sinaabedii/arian-etc-sub001/internal/config"
	"github.com/sinaabedii/arian-etc-sub001/internal/repository"
	pgrepo "github.com/sinaabedii/arian-etc-sub001/internal/repository/postgres"
	redisrepo "github.com/sinaabedii/arian-etc-sub001/internal/repository/redis"
	sqliterepo "github.com/sinaabedii/arian-etc-sub001/internal/repository/sqlite"
	"github.com/sinaabedii/arian-etc-sub001/pkg/database"
)

// storage is the opened persisted mirror with its health check and closer.
type storage struct {
	kv    repository.KVStore
	ping  func(ctx context.Context) error
	close func() error
}

// openStorage connects the backend named by cfg.Storage.
func openStorage(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*storage, error) {
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)

	switch cfg.Storage {
	case config.StorageRedis:
		rcfg := database.DefaultRedisConfig()
		rcfg.Addr = cfg.RedisAddr
		rcfg.Password = cfg.RedisPass
		rcfg.DB = cfg.RedisDB
		rdb, err := database.NewRedisClient(ctx, rcfg)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		kv := redisrepo.NewKVStore(rdb, cfg.RedisTTL)
		return &storage{kv: kv, ping: kv.Ping, close: rdb.Close}, nil

	case config.StoragePostgres:
		pcfg := database.DefaultPostgresConfig()
		pcfg.Host = cfg.PostgresHost
		pcfg.Port = cfg.PostgresPort
		pcfg.User = cfg.PostgresUser
		pcfg.Password = cfg.PostgresPassword
		pcfg.DBName = cfg.PostgresDB
		pcfg.SSLMode = cfg.PostgresSSLMode
		pool, err := database.NewPostgresPool(ctx, &pcfg, logger)
		if err != nil {
			return nil, err
		}
		if err := pgrepo.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
		if err := database.RegisterPoolMetrics(reg, pool, serviceName); err != nil {
			logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
		}
		kv := pgrepo.NewKVStore(pool)
		return &storage{kv: kv, ping: kv.Ping, close: func() error {
			pool.Close()
			return nil
		}}, nil

	case config.StorageSQLite:
		kv, err := sqliterepo.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("opened SQLite mirror", slog.String("path", cfg.SQLitePath))
		return &storage{kv: kv, ping: kv.Ping, close: kv.Close}, nil

	case config.StorageMemory:
		kv := repository.NewMemoryStore()
		logger.Warn("using in-memory mirror, session state is lost on restart")
		return &storage{kv: kv, ping: kv.Ping, close: func() error { return nil }}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
