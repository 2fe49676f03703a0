// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopcompliance/engine/internal/observability"
)

// workerCmd runs the job supervisor and its worker pool with no HTTP
// surface. The work queue is an in-process channel, so this mode does not
// receive jobs submitted to a separate serve process.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job worker pool without the HTTP API",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := buildLogger("complianceengine-worker")

	engine, cfg, err := buildEngine(ctx, logger)
	if err != nil {
		return err
	}

	observability.InitMetrics()
	shutdownTracer, err := observability.InitTracer(observability.TracingConfig{
		ServiceName: "complianceengine-worker",
		Endpoint:    cfg.OTelEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}

	engine.Start(ctx)
	logger.Info("worker pool started", "workers", cfg.Workers)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if err := engine.Stop(); err != nil {
		logger.Warn("engine stop did not complete cleanly", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownTracer(shutdownCtx)
	return nil
}
