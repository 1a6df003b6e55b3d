package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olipack/olipack-go/internal/config"
	"github.com/olipack/olipack-go/internal/domain"
	"github.com/olipack/olipack-go/internal/handler"
	"github.com/olipack/olipack-go/internal/infra/cache"
	"github.com/olipack/olipack-go/internal/infra/localstore"
	"github.com/olipack/olipack-go/internal/infra/observability"
	"github.com/olipack/olipack-go/internal/infra/resilience"
	"github.com/olipack/olipack-go/internal/infra/supabase"
	"github.com/olipack/olipack-go/internal/port"
	"github.com/olipack/olipack-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("remote_store", cfg.RemoteConfigured()),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("auth_watch_interval", cfg.AuthWatchInterval),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "olipack-shell")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Local mirror (session + offline account ledger) ---
	var mirror port.KeyValue
	if cfg.MirrorRedisAddr != "" {
		redisMirror := localstore.NewRedisStore(cfg.MirrorRedisAddr, "olipack", logger)
		defer redisMirror.Close()
		mirror = redisMirror
		logger.Info("local mirror backed by redis", zap.String("addr", cfg.MirrorRedisAddr))
	} else {
		mirror = localstore.NewFileStore(cfg.StatePath, logger)
		logger.Info("local mirror backed by state file", zap.String("path", cfg.StatePath))
	}

	// --- Remote account store ---
	var store port.AccountStore
	var watcher port.AuthWatcher
	if cfg.RemoteConfigured() {
		logger.Info("using Supabase account store", zap.String("supabase_url", cfg.SupabaseURL))

		client := supabase.NewClient(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			resilience.NewCircuitBreaker("supabase"),
			resilience.Config{
				MaxRetries:     cfg.MaxRetries,
				InitialBackoff: cfg.InitialBackoff,
				MaxConcurrency: cfg.MaxConcurrency,
			},
			cfg.AuthWatchInterval,
			logger,
		)
		store = client
		watcher = client
	} else {
		logger.Info("remote store not configured, running offline with seed accounts")
	}

	// --- Services ---
	sessions := service.NewSessionService(
		store,
		watcher,
		mirror,
		cache.New[*domain.ProfileRecord](cfg.CacheTTL),
		metrics,
		logger,
	)
	defer sessions.Close()

	nav := service.NewNavigator(sessions, metrics, logger)
	records := service.NewRecordsService(store, sessions, metrics, logger)

	// Resolve the session before serving: navigation must never decide
	// against an unresolved session.
	resolveCtx, cancelResolve := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	sess := sessions.Resolve(resolveCtx)
	cancelResolve()
	if sess.User != nil {
		logger.Info("session restored at startup",
			zap.String("email", sess.User.Email),
			zap.String("role", string(sess.User.Role)),
		)
	}

	// --- Router ---
	router := handler.NewRouter(sessions, nav, records, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
