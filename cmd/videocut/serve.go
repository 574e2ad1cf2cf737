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

	"github.com/bnema/videocut/config"
	httpadapter "github.com/bnema/videocut/internal/adapter/http"
	"github.com/bnema/videocut/internal/adapter/http/ratelimit"
	"github.com/bnema/videocut/internal/adapter/runner"
	"github.com/bnema/videocut/internal/infrastructure/logger"
	"github.com/bnema/videocut/internal/port"
	"github.com/bnema/videocut/internal/service"
	"github.com/spf13/cobra"
)

func newServeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and job coordinator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cfg)
		},
	}
}

func newRunner(cfg *config.Config, d dirs) (port.JobRunner, error) {
	if cfg.Runner == config.RunnerInProcess {
		return runner.NewInProcessRunner(newExecutor(cfg, d)), nil
	}
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return runner.NewProcessRunner(runner.ProcessConfig{
		Path: self,
		Args: []string{"worker"},
		// The child reads the same environment; the data dir may come
		// from a flag so it is passed explicitly.
		Env:              []string{"DATA_DIR=" + cfg.DataDir},
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		Deadline:         cfg.JobTimeout + workerGrace,
		Stderr:           os.Stderr,
	}), nil
}

func serve(cfg *config.Config) error {
	logger.Info.Printf("starting videocut on port %d, domain=%s, store=%s, runner=%s",
		cfg.Port, cfg.Domain, cfg.Store, cfg.Runner)

	d, err := prepareDirs(cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	jobRunner, err := newRunner(cfg, d)
	if err != nil {
		return err
	}

	authSvc, err := service.NewAuthService(cfg.AuthSecret)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	eventBus := service.NewEventBus()
	coordinator := service.NewCoordinator(store, jobRunner, eventBus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := coordinator.Recover(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	reaper := service.NewReaper(d.work, cfg.ReaperMaxAge, coordinator)
	go reaper.Run(ctx, cfg.ReaperInterval)

	limiter := ratelimit.NewSubmitLimiter(cfg.SubmitRateLimit, time.Minute, time.Minute, time.Hour)
	defer limiter.Close()

	server := httpadapter.NewServer(authSvc, coordinator, service.NewMediaService(d.work), eventBus, limiter,
		httpadapter.ServerConfig{
			PublicDir:   d.public,
			MaxSizeMB:   cfg.MaxUploadSizeMB,
			BehindProxy: cfg.BehindProxy,
		})

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info.Printf("received %s, shutting down", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Stop accepting new requests, then stop executors and wait for
		// their terminal events to be recorded.
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error.Printf("http shutdown error: %v", err)
		}
		if err := coordinator.Shutdown(shutdownCtx); err != nil {
			logger.Error.Printf("coordinator shutdown error: %v", err)
		}
		cancel()

		logger.Info.Printf("shutdown complete")
	}()

	logger.Info.Printf("server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	<-shutdownDone
	return nil
}
