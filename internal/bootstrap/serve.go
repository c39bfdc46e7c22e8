package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/silencecut/internal/config"
	"github.com/maauso/silencecut/internal/server"
)

// ShutdownTimeout bounds how long Serve waits for requests and running jobs
// once ctx is cancelled.
const ShutdownTimeout = 30 * time.Second

// NewHTTPServer builds the API server for deps.
func NewHTTPServer(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *http.Server {
	handlers := server.NewHandlers(deps.Service, logger,
		server.WithDefaultParams(deps.Defaults),
		server.WithEncoderLister(deps.Engine),
		server.WithHub(deps.Hub),
	)
	router := server.NewRouter(handlers, logger, server.DefaultConfig())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// no WriteTimeout: the events websocket stays open for the whole job
		IdleTimeout: 60 * time.Second,
	}
}

// Serve runs the HTTP API, and the inbox watcher when configured, until ctx
// is cancelled. Running jobs are cancelled and awaited before it returns.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("failed to close dependencies", slog.String("error", err.Error()))
		}
	}()

	srv := NewHTTPServer(cfg, deps, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	if deps.Inbox != nil {
		g.Go(func() error {
			if err := deps.Inbox.Run(gctx); err != nil {
				return fmt.Errorf("watch folder: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown failed: %w", err))
		}
		if err := deps.Service.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop jobs: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
