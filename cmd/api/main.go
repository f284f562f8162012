package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bayarin/bayarin/internal/config"
	"github.com/bayarin/bayarin/internal/jobs"
	"github.com/bayarin/bayarin/internal/logging"
	"github.com/bayarin/bayarin/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "service", cfg.AppName, "env", cfg.AppEnv)
	if err := run(cfg, logger); err != nil {
		logger.Error("api exited", "error", err)
		os.Exit(1)
	}
}

// run returns once the server has stopped and every backend is closed.
func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	svcs, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer func() {
		if err := svcs.Close(); err != nil {
			logger.Warn("close backends", "error", err)
		}
	}()

	var purger jobs.Purger
	if svcs.Purger != nil {
		purger = svcs.Purger
	}
	scheduler := jobs.NewScheduler(cfg.ReconcileSchedule, svcs.Reconciler, purger, logger)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	srv := server.New(cfg, svcs, logger)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	stop()

	logger.Info("server exited cleanly")
	return nil
}
