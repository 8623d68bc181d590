package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/sinaabedii/arian-etc-sub001/internal/config"
	"github.com/sinaabedii/arian-etc-sub001/internal/event"
	handler "github.com/sinaabedii/arian-etc-sub001/internal/handler/http"
	"github.com/sinaabedii/arian-etc-sub001/internal/remote"
	"github.com/sinaabedii/arian-etc-sub001/internal/service"
	apperrors "github.com/sinaabedii/arian-etc-sub001/pkg/errors"
	"github.com/sinaabedii/arian-etc-sub001/pkg/health"
	"github.com/sinaabedii/arian-etc-sub001/pkg/httpclient"
	pkgkafka "github.com/sinaabedii/arian-etc-sub001/pkg/kafka"
	"github.com/sinaabedii/arian-etc-sub001/pkg/tracing"
)

const serviceName = "storefront-sync"

// App wires together all dependencies and runs the storefront sync service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	storage        *storage
	producer       *event.Producer
	registry       *service.Registry
	httpServer     *http.Server
	shutdownTracer func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Tracing.
	tcfg := tracing.DefaultConfig(serviceName)
	tcfg.Environment = cfg.Environment
	tcfg.OTLPEndpoint = cfg.OTELEndpoint
	tcfg.Insecure = cfg.OTELInsecure
	tcfg.SampleRate = cfg.OTELSampleRate
	tcfg.Enabled = cfg.OTELEnabled
	shutdownTracer, err := tracing.InitTracer(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Persisted mirror.
	store, err := openStorage(ctx, cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		_ = shutdownTracer(context.Background())
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage, err)
	}

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical(cfg.Storage, store.ping)

	// Sync events.
	var (
		events   service.EventPublisher = service.NoopPublisher{}
		producer *event.Producer
	)
	if cfg.KafkaEnabled {
		kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		producer = event.NewProducer(kafkaProducer, logger)
		events = producer
		healthHandler.RegisterNonCritical("kafka", kafkaProducer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Commerce backend client, shared by every session.
	breaker := newBackendClient(cfg, logger)
	healthHandler.RegisterNonCritical("commerce-api", func(context.Context) error {
		if breaker.State() == gobreaker.StateOpen {
			return errors.New("circuit breaker open")
		}
		return nil
	})
	newAPI := func(tokens remote.TokenSource) service.RemoteAPI {
		return remote.NewClient(cfg.BackendURL, breaker, tokens, logger)
	}

	registry := service.NewRegistry(registryConfig(cfg), store.kv, newAPI, events, logger)

	// HTTP router.
	h := handler.NewHandler(registry, logger)
	limiter := handler.NewSessionLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.SessionIdleTTL)
	router := handler.NewRouter(h, healthHandler, limiter, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		storage:        store,
		producer:       producer,
		registry:       registry,
		httpServer:     httpServer,
		shutdownTracer: shutdownTracer,
	}, nil
}

// newBackendClient builds the retrying client behind a circuit breaker.
// While the breaker is open, calls fail fast with ServiceUnavailable, which
// the sync services treat like any other backend failure.
func newBackendClient(cfg *config.Config, logger *slog.Logger) *httpclient.CircuitBreakerClient {
	hcfg := httpclient.DefaultConfig()
	hcfg.Timeout = cfg.BackendTimeout
	hcfg.MaxRetries = cfg.BackendMaxRetries

	cbCfg := httpclient.DefaultCircuitBreakerConfig("commerce-api")
	cbCfg.Timeout = cfg.BreakerTimeout
	cbCfg.MinRequests = cfg.BreakerMinRequests

	return httpclient.NewCircuitBreakerClient(httpclient.New(hcfg), cbCfg, logger).
		WithFallback(func(ctx context.Context, err error) (*http.Response, error) {
			return nil, apperrors.ServiceUnavailable("commerce backend unavailable")
		})
}

func registryConfig(cfg *config.Config) service.RegistryConfig {
	return service.RegistryConfig{
		IdleTTL:         cfg.SessionIdleTTL,
		JanitorInterval: cfg.SessionJanitorInterval,
		MountTimeout:    cfg.SessionMountTimeout,
		CallTimeout:     cfg.CallTimeout,
		PageSize:        cfg.PageSize,
		CartPolicy: service.SyncPolicy{
			RollbackOnFailure:      cfg.CartRollbackOnFailure,
			OverwriteOnEmptyRemote: cfg.CartOverwriteOnEmptyRemote,
		},
		WishlistPolicy: service.SyncPolicy{
			RollbackOnFailure:      cfg.WishlistRollbackOnFailure,
			OverwriteOnEmptyRemote: cfg.WishlistOverwriteOnEmptyRemote,
		},
	}
}

// Run starts the HTTP server and the session janitor and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go a.registry.Run(janitorCtx)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components. Sessions are closed after the
// server stops accepting requests and before storage goes away, so their
// last writes land.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	a.registry.Shutdown()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if err := a.storage.close(); err != nil {
		a.logger.Error("storage close error", slog.String("error", err.Error()))
	}

	if err := a.shutdownTracer(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
