// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cardinalhq/catalogrunner/config"
	"github.com/cardinalhq/catalogrunner/internal/debugging"
	"github.com/cardinalhq/catalogrunner/internal/healthcheck"
	"github.com/cardinalhq/catalogrunner/internal/workqueue"
)

// serviceFunc runs one long-lived command until ctx is done.
type serviceFunc func(ctx context.Context, cfg *config.Config, b *backends, health *healthcheck.Server) error

// runService sets up telemetry, pprof and health checks around fn, loads
// configuration and closes every backend fn constructed on the way out.
func runService(servicename string, fn serviceFunc) error {
	addlAttrs := attribute.NewSet()
	ctx, doneFx, err := setupTelemetry(servicename, &addlAttrs)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		if err := doneFx(); err != nil {
			slog.Error("Error shutting down telemetry", slog.Any("error", err))
		}
	}()

	go debugging.RunPprof(ctx)

	healthServer := healthcheck.NewServer(healthcheck.GetConfigFromEnv())
	go func() {
		if err := healthServer.Start(ctx); err != nil {
			slog.Error("Health check server stopped", slog.Any("error", err))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		healthServer.SetStatus(healthcheck.StatusUnhealthy)
		return fmt.Errorf("failed to load config: %w", err)
	}

	b := newBackends(cfg)
	defer func() {
		if err := b.Close(); err != nil {
			slog.Error("Error closing backends", slog.Any("error", err))
		}
	}()

	healthServer.SetStatus(healthcheck.StatusHealthy)

	err = fn(ctx, cfg, b, healthServer)
	if errors.Is(err, context.Canceled) {
		slog.Info("shutting down", "error", err)
		return nil
	}
	return err
}

// serveHTTP serves h on addr until ctx is done.
func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server", slog.String("address", addr))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// readinessPinger is satisfied by backends that can check their connection.
type readinessPinger interface {
	Ping(ctx context.Context) error
}

func addPingCheck(health *healthcheck.Server, name string, v any) {
	if p, ok := v.(readinessPinger); ok {
		health.AddCheck(name, p.Ping)
	}
}

// monitorQueues publishes the depth of every queue that can report one.
func monitorQueues(ctx context.Context, queues map[string]workqueue.Queue) {
	depthers := map[string]workqueue.Depther{}
	for name, q := range queues {
		if d, ok := q.(workqueue.Depther); ok {
			depthers[name] = d
		}
	}
	if len(depthers) == 0 {
		return
	}
	m, err := workqueue.NewDepthMonitor(depthers, 30*time.Second)
	if err != nil {
		slog.Warn("Queue depth monitoring disabled", slog.Any("error", err))
		return
	}
	go func() { _ = m.Run(ctx) }()
}
