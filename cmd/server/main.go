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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kopi-pos/api/internal/config"
	"github.com/kopi-pos/api/internal/database"
	"github.com/kopi-pos/api/internal/logger"
	"github.com/kopi-pos/api/internal/messaging"
	"github.com/kopi-pos/api/internal/router"
	"github.com/kopi-pos/api/internal/service"
	"github.com/kopi-pos/api/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("migrations applied")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Info().Msg("connected to database")

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	targets := []any{hub}
	if cfg.RabbitMQURL != "" {
		conn, err := messaging.Dial(ctx, cfg.RabbitMQURL, log)
		if err != nil {
			return err
		}
		defer conn.Close()
		targets = append(targets, messaging.NewPublisher(conn.Channel(), log))
		log.Info().Str("exchange", messaging.Exchange).Msg("event publisher enabled")
	}

	eng := service.NewEngine(pool, database.New(pool), service.QueriesStore, service.NewFanout(targets...), service.Config{
		VATPercent:     cfg.VATPercent,
		PersistTimeout: cfg.PersistTimeout,
		MaxRetries:     cfg.PersistMaxRetries,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(cfg, eng, hub, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
