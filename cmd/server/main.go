package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"apotekin/backend/internal/cache"
	"apotekin/backend/internal/config"
	"apotekin/backend/internal/httpapi"
	"apotekin/backend/internal/service"
	"apotekin/backend/internal/store"
	"apotekin/backend/internal/store/memory"
	"apotekin/backend/internal/store/seed"
	"apotekin/backend/internal/store/sqlstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := newLogger(os.Stdout, cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("close error", "error", err)
			}
		}
	}()

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	receipts := cache.ReceiptCache(cache.NoopReceiptCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReceiptCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ReceiptCacheTTL)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop receipt cache", "addr", cfg.RedisAddr, "error", err)
			_ = redisCache.Close()
		} else {
			receipts = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("receipt cache: redis", "addr", cfg.RedisAddr)
		}
	} else {
		logger.Info("receipt cache: noop")
	}

	svc := service.New(repo, receipts, logger, service.Settings{
		SalesLookbackDays: cfg.SalesLookbackDays,
		ExpiringSoonDays:  cfg.ExpiringSoonDays,
	})
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL, repo, logger)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("pharmacy backend listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	return nil
}

// openRepository picks the store from configuration. A configured database
// that cannot be reached is fatal; there is no fallback to memory. SQL stores
// get demo data only with SEED_DEMO_DATA set.
func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Repository, func() error, error) {
	var (
		sqlStore *sqlstore.Store
		err      error
	)
	switch {
	case cfg.DatabaseURL != "":
		sqlStore, err = sqlstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set, refusing in-memory fallback: %w", err)
		}
		logger.Info("repository: postgres")
	case cfg.SQLitePath != "":
		sqlStore, err = sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		logger.Info("repository: sqlite", "path", cfg.SQLitePath)
	default:
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}

	if cfg.SeedDemoData {
		if err := seed.Load(ctx, sqlStore, logger); err != nil {
			_ = sqlStore.Close()
			return nil, nil, fmt.Errorf("seed: %w", err)
		}
	}
	return sqlStore, sqlStore.Close, nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
