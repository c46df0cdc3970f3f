package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gsbdarc/survey-chat-gateway/pkg/admission"
	"github.com/gsbdarc/survey-chat-gateway/pkg/admission/store"
	"github.com/gsbdarc/survey-chat-gateway/pkg/apiserver"
	"github.com/gsbdarc/survey-chat-gateway/pkg/audit"
	"github.com/gsbdarc/survey-chat-gateway/pkg/authz"
	"github.com/gsbdarc/survey-chat-gateway/pkg/config"
	"github.com/gsbdarc/survey-chat-gateway/pkg/gateway"
	"github.com/gsbdarc/survey-chat-gateway/pkg/identity"
	"github.com/gsbdarc/survey-chat-gateway/pkg/observability/logging"
	"github.com/gsbdarc/survey-chat-gateway/pkg/upstream"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	flag.Parse()

	// Initialize logging (zap) from environment.
	if _, err := logging.InitLoggerFromEnv(); err != nil {
		// Fallback to stderr since logger initialization failed
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
	}
	defer logging.Sync() //nolint:errcheck

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatalf("Failed to load config %s: %v", *configPath, err)
	}

	counterStore, err := store.NewStore(store.StoreConfig{
		Backend: store.BackendType(cfg.Store.Backend),
		SQLite:  store.SQLiteStoreConfig{Path: cfg.Store.SQLite.Path},
		Redis: store.RedisStoreConfig{
			Address:    cfg.Store.Redis.Address,
			Password:   cfg.Store.Redis.Password,
			Database:   cfg.Store.Redis.Database,
			KeyPrefix:  cfg.Store.Redis.KeyPrefix,
			TTLSeconds: cfg.Store.Redis.TTLSeconds,
		},
	})
	if err != nil {
		logging.Fatalf("Failed to create counter store: %v", err)
	}
	defer counterStore.Close()

	gate := admission.NewGate(counterStore, admission.Limits{
		RateLimitSeconds:   cfg.Admission.RateLimitSeconds,
		MaxRateLimitErrors: cfg.Admission.MaxRateLimitErrors,
		MaxCalls:           cfg.Admission.MaxCalls,
	}, cfg.Admission.MaxUpdateAttempts)

	var originValidator, keyValidator authz.Validator
	if cfg.Origin.CheckEnabled {
		originValidator = authz.NewOriginAllowlist(cfg.Origin.AllowedOrigins)
	}
	if cfg.Origin.EndpointKeyEnabled {
		keyValidator = authz.NewEndpointKey(cfg.Origin.EndpointKey)
	}
	validators := authz.NewChain(originValidator, keyValidator)
	logging.Infof("Request validators: %v", validators.ValidatorNames())

	pipeline := gateway.NewPipeline(
		cfg.ServiceEnabled,
		validators,
		gate,
		upstream.NewForwarder(cfg.Upstream),
		audit.New(cfg.Audit),
	)

	// Start metrics server
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		metricsAddr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logging.Infof("Starting metrics server on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			logging.Errorf("Metrics server error: %v", err)
		}
	}()

	server := apiserver.New(cfg, pipeline, identity.AddressResolver{}, counterStore)
	httpServer := server.HTTPServer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("Gateway HTTP server listening on %s", cfg.Server.ListenAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logging.Infof("Shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Errorf("Graceful shutdown failed: %v", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatalf("HTTP server error: %v", err)
		}
	}
}
