package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Clark-Hu/watchlist-api/internal/auth"
	"github.com/Clark-Hu/watchlist-api/internal/config"
	httpserver "github.com/Clark-Hu/watchlist-api/internal/http"
	"github.com/Clark-Hu/watchlist-api/internal/logging"
	"github.com/Clark-Hu/watchlist-api/internal/metrics"
	"github.com/Clark-Hu/watchlist-api/internal/rating"
	"github.com/Clark-Hu/watchlist-api/internal/repository"
	"github.com/Clark-Hu/watchlist-api/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 &logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer st.Close()
	metrics.RegisterPoolStats(prometheus.DefaultRegisterer, st.Stats)

	repo := repository.New(st, repository.Options{
		LockTimeout: time.Duration(cfg.ReviewLockTimeoutMS) * time.Millisecond,
	})

	maxRetries := cfg.ReviewMaxRetries
	if maxRetries == 0 {
		// The service treats zero as "use the default".
		maxRetries = -1
	}
	reviews := rating.NewService(repo, rating.Options{
		MaxRetries: maxRetries,
		Logger:     &logger,
	})

	authManager := auth.NewManager(cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute)
	server := httpserver.New(cfg, st, repo, reviews, authManager, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	logger.Info().Msg("server stopped")
}
