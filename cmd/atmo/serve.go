package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/atmo-alert-service/internal/adapter/http"
	"github.com/couchcryptid/atmo-alert-service/internal/classdef"
	"github.com/couchcryptid/atmo-alert-service/internal/observability"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics, classes, legend, palette and classify endpoints",
		Long: `Starts the HTTP server. Class definitions are loaded at startup and
reloaded on SIGHUP; /readyz reports not ready until a load has succeeded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	metrics := observability.NewMetrics()
	loader := classdef.NewLoader(a.cfg.ClassesTimeout, metrics, a.logger)
	holder := classdef.NewHolder(loader, a.cfg.ClassesSource)
	if err := holder.Reload(parent); err != nil {
		a.logger.Error("initial class definition load failed", "source", a.cfg.ClassesSource, "error", err)
	}

	srv := httpadapter.NewServer(a.cfg.HTTPAddr, holder, holder, httpadapter.Options{
		StoragePath: a.cfg.StoragePath,
		Legend:      a.legendOptions(),
		TileWorkers: a.cfg.TileWorkers,
	}, metrics, a.logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-errCh:
			serveErr = err
			break loop
		case <-hup:
			if err := holder.Reload(ctx); err != nil {
				a.logger.Error("class definition reload failed, keeping previous set", "error", err)
				continue
			}
			a.logger.Info("class definitions reloaded", "source", a.cfg.ClassesSource)
		}
	}
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}
	a.logger.Info("shutdown complete")
	return serveErr
}
