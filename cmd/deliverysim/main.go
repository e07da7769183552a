package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mboxkit/mboxkit/internal/config"
	"github.com/mboxkit/mboxkit/internal/infrastructure/kvstore"
	"github.com/mboxkit/mboxkit/internal/infrastructure/sse"
	"github.com/mboxkit/mboxkit/internal/simulator"
	"github.com/mboxkit/mboxkit/internal/state"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	store, cleanup, err := newStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer cleanup()

	hub := sse.NewHub()
	defer hub.Stop()

	server := simulator.NewServer(simulator.Options{
		ClientCode:       cfg.ClientCode,
		EdgeHostHint:     cfg.EdgeHostHint,
		ResponseDelay:    cfg.ResponseDelay,
		LogRequestBodies: cfg.LogRequestBodies,
	}, store, hub, logger)

	if cfg.OffersPath != "" {
		if err := server.LoadOffers(cfg.OffersPath); err != nil {
			log.Fatalf("offer catalog error: %v", err)
		}
	}

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Str("client", cfg.ClientCode).Msg("delivery simulator started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

// newStore picks the session store backend: postgres when a database is
// configured, a flushed file when a path is given, in-memory otherwise.
func newStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (state.Store, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := kvstore.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := kvstore.NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	case cfg.StorePath != "":
		store, err := kvstore.NewFile(cfg.StorePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return kvstore.NewMemory(), func() {}, nil
	}
}
