package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SooryaCodes/medchainx-sub000/internal/access"
	"github.com/SooryaCodes/medchainx-sub000/internal/gateway"
	"github.com/SooryaCodes/medchainx-sub000/internal/ledger"
	"github.com/SooryaCodes/medchainx-sub000/internal/records"
	"github.com/SooryaCodes/medchainx-sub000/pkg/config"
	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/monitoring"
	"github.com/SooryaCodes/medchainx-sub000/pkg/repository"
)

const (
	serviceName    = "medchainx"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.LogLevel)
	ctx := context.Background()

	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialise MedChainX")
	}

	go func() {
		if err := app.server.Start(); err != nil {
			appLogger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down MedChainX...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Failed to shut down gracefully")
		os.Exit(1)
	}

	appLogger.Info("MedChainX stopped")
}

// application holds the wired service and everything that needs closing
type application struct {
	server  *gateway.Server
	closers []func(context.Context) error
}

func (a *application) shutdown(ctx context.Context) error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newApplication(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (*application, error) {
	app := &application{}
	fail := func(err error) (*application, error) {
		app.shutdown(ctx)
		return nil, err
	}

	tracing, err := monitoring.NewTracingManager(&monitoring.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Enabled:        cfg.Monitoring.TracingEnabled,
		JaegerEndpoint: cfg.Monitoring.JaegerEndpoint,
		Environment:    cfg.Monitoring.Environment,
		SamplingRate:   cfg.Monitoring.SamplingRate,
	})
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, tracing.Shutdown)

	metrics := monitoring.NewMetricsCollector(serviceName)
	health := monitoring.NewHealthManager(serviceName, serviceVersion)

	backend, err := repository.OpenBackend(ctx, cfg, appLogger)
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, func(context.Context) error { return backend.Close() })
	if backend.DB != nil {
		health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(backend.DB.DB))
	}

	chain, err := ledger.Open(ctx, backend.Store, ledger.WithLogger(appLogger))
	if err != nil {
		return fail(err)
	}
	health.RegisterChecker("ledger", monitoring.NewLedgerHealthChecker(func() (int, int) {
		report := chain.Verify()
		return report.Length, len(report.Violations)
	}))

	registry, err := newRevocationRegistry(ctx, cfg, health)
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, registry.close)

	policy, err := access.NewPolicy(access.PolicyConfig{
		SigningKey:    cfg.Token.SigningKey,
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		DefaultWindow: cfg.Token.DefaultValidity,
	}, registry.RevocationRegistry, access.WithLogger(appLogger))
	if err != nil {
		return fail(err)
	}

	service := records.NewService(chain, policy, metrics, tracing, appLogger)
	handlers := records.NewHandlers(service, appLogger)

	var limiter *gateway.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = gateway.NewRateLimiter(cfg.RateLimit.RequestsPerMin, time.Minute)
		limiter.StartCleanup(cfg.RateLimit.CleanupInterval)
	}

	trustedProxies, err := gateway.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return fail(err)
	}

	app.server = gateway.NewServer(&gateway.Config{
		Addr:                cfg.Server.Addr(),
		ReadTimeout:         time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:        time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:         time.Duration(cfg.Server.IdleTimeout) * time.Second,
		AllowedOrigins:      []string{"*"},
		RatePeriod:          time.Minute,
		RateLimitedPrefixes: []string{"/access-tokens"},
		TrustedProxies:      trustedProxies,
		MetricsPath:         cfg.Monitoring.MetricsPath,
		HealthPath:          cfg.Monitoring.HealthPath,
	}, limiter, health, metrics, tracing, appLogger, handlers)
	app.closers = append(app.closers, app.server.Stop)

	appLogger.WithComponent("main").WithFields(map[string]interface{}{
		"store":      cfg.Ledger.Store,
		"revocation": cfg.Token.Revocation,
		"length":     chain.Len(),
	}).Info("MedChainX initialised")

	return app, nil
}

// revocationBackend pairs a registry with its teardown
type revocationBackend struct {
	access.RevocationRegistry
	close func(context.Context) error
}

func newRevocationRegistry(ctx context.Context, cfg *config.Config, health *monitoring.HealthManager) (*revocationBackend, error) {
	if cfg.Token.Revocation == config.RevocationRedis {
		client, err := access.NewRedisUniversalClient(ctx, cfg.Redis.Addrs, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			return nil, err
		}
		health.RegisterChecker("redis", monitoring.NewRedisHealthChecker(client))
		return &revocationBackend{
			RevocationRegistry: access.NewRedisRegistry(client),
			close:              func(context.Context) error { return client.Close() },
		}, nil
	}

	registry := access.NewMemoryRegistry()
	registry.StartCleanup(cfg.Token.CleanupInterval)
	return &revocationBackend{
		RevocationRegistry: registry,
		close: func(context.Context) error {
			registry.Stop()
			return nil
		},
	}, nil
}
