package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := BuildApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	cfg := app.Config
	log := app.Logger

	log.Info("starting scoreboard server",
		"environment", cfg.Environment,
		"address", cfg.Server.Address(),
		"storage_adapter", cfg.Storage.Adapter,
		"key", cfg.Leaderboard.Key)

	app.Board.Start(ctx)
	if cfg.Leaderboard.WaitForPrimary {
		if err := app.Board.Controller.Wait(ctx); err != nil {
			log.Warn("stopped waiting for primary", "error", err)
		}
		log.Info("backend ready", "mode", app.Board.Controller.Health())
	}

	srv := app.Server
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("failed to start server", "error", err)
		cleanup()
		os.Exit(1)
	}

	log.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("error during server shutdown", "error", err)
	}
	cleanup()

	slog.Info("server stopped")
}
