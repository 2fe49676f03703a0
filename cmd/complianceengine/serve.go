// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopcompliance/engine/internal/httpapi"
	"github.com/shopcompliance/engine/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the worker pool in one process",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := buildLogger("complianceengine-serve")

	engine, cfg, err := buildEngine(ctx, logger)
	if err != nil {
		return err
	}

	observability.InitMetrics()
	shutdownTracer, err := observability.InitTracer(observability.TracingConfig{
		ServiceName: "complianceengine",
		Endpoint:    cfg.OTelEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}

	engine.Start(ctx)

	router := httpapi.NewRouter(engine, httpapi.ServerConfig{
		ForceNewPerHourPerOrigin: cfg.ForceNewPerHourPerOrigin,
		ForceNewBurst:            1,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown did not complete cleanly", "error", err)
	}

	if err := engine.Stop(); err != nil {
		logger.Warn("engine stop did not complete cleanly", "error", err)
	}
	shutdownTracer(shutdownCtx)
	return nil
}
