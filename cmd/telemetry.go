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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cardinalhq/oteltools/pkg/telemetry"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/host"
	iruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/catalogrunner/internal/idgen"
)

var (
	commonAttributes attribute.Set

	meter = otel.Meter("github.com/cardinalhq/catalogrunner")

	myInstanceID int64

	// existsGauge is set to 1 once and never changes. It keeps a series
	// alive per running instance.
	// nolint:unused
	existsGauge metric.Int64Gauge
)

// otlpEnabled reports whether logs and metrics should also be exported over OTLP.
func otlpEnabled() bool {
	return os.Getenv("OTEL_SERVICE_NAME") != "" && os.Getenv("ENABLE_OTLP_TELEMETRY") == "true"
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" || os.Getenv("CATALOGRUNNER_DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// newLogger writes text to stdout and, when exporting, fans out to the OTel log bridge.
func newLogger(servicename string, export bool) *slog.Logger {
	var h slog.Handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()})
	if export {
		h = slogmulti.Fanout(h, otelslog.NewHandler(servicename))
	}
	return slog.New(h).With(
		slog.String("service", servicename),
		slog.Int64("instanceID", myInstanceID),
	)
}

// startOTel brings up the SDK plus runtime and host instrumentation and
// returns the SDK shutdown.
func startOTel(ctx context.Context) (func(context.Context) error, error) {
	shutdown, err := telemetry.SetupOTelSDK(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to setup OpenTelemetry SDK: %w", err)
	}
	if err := iruntime.Start(iruntime.WithMinimumReadMemStatsInterval(10 * time.Second)); err != nil {
		slog.Warn("failed to start runtime metrics", slog.Any("error", err))
	}
	if err := host.Start(); err != nil {
		slog.Warn("failed to start host metrics", slog.Any("error", err))
	}
	return shutdown, nil
}

// setupTelemetry installs the default logger and, when enabled, the OTel SDK.
// The returned context is cancelled on SIGINT or SIGTERM; the returned
// function releases everything.
func setupTelemetry(servicename string, addlAttrs *attribute.Set) (context.Context, func() error, error) {
	myInstanceID = idgen.InstanceID()
	doneCtx, doneCancel := handleSignals(context.Background())

	attrs := []attribute.KeyValue{attribute.Int64("instanceID", myInstanceID)}
	if addlAttrs != nil {
		attrs = append(attrs, addlAttrs.ToSlice()...)
	}
	commonAttributes = attribute.NewSet(attrs...)

	export := otlpEnabled()
	slog.SetDefault(newLogger(servicename, export))

	cleanup := func() error {
		doneCancel()
		return nil
	}
	if export {
		slog.Info("OpenTelemetry exporting enabled")
		shutdown, err := startOTel(doneCtx)
		if err != nil {
			doneCancel()
			return doneCtx, nil, err
		}
		cleanup = func() error {
			defer doneCancel()
			slog.Info("Shutting down OpenTelemetry SDK")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return shutdown(ctx)
		}
	}

	setupGlobalMetrics()
	return doneCtx, cleanup, nil
}

// handleSignals cancels the returned context on SIGINT or SIGTERM.
func handleSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func setupGlobalMetrics() {
	mg, err := meter.Int64Gauge(
		"catalogrunner.exists",
		metric.WithDescription("Indicates if the service is running (1) or not (0)"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create exists.gauge: %w", err))
	}
	existsGauge = mg
	mg.Record(context.Background(), 1, metric.WithAttributeSet(commonAttributes))
}
