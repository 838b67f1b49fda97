package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/safar/go-sales-ledger/internal/api"
	"github.com/safar/go-sales-ledger/internal/config"
	"github.com/safar/go-sales-ledger/internal/database"
	"github.com/safar/go-sales-ledger/internal/ids"
	"github.com/safar/go-sales-ledger/internal/logging"
	"github.com/safar/go-sales-ledger/internal/notify"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logging.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("connected to database")

	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.Redis.URL != "" {
		redisNotifier, err := notify.NewRedisNotifier(cfg.Redis.URL, cfg.Redis.LowStockChannel)
		if err != nil {
			log.Warn("redis low-stock publisher disabled", "err", err)
		} else {
			defer redisNotifier.Close()
			notifiers = append(notifiers, redisNotifier)
			log.Info("publishing low-stock signals", "channel", cfg.Redis.LowStockChannel)
		}
	}

	srv := api.NewServer(db, ids.NewTimestamped(), notifiers, log, cfg.Inventory.LowStockThreshold)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
