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

// Package debugging exposes net/http/pprof on a side port.
package debugging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"time"
)

const DefaultPprofPort = 6060

// RunPprof serves the profiling endpoints until ctx is done. PPROF_PORT
// selects the port; "0", "false" or "off" disables it.
func RunPprof(ctx context.Context) {
	port := PortFromEnv()
	if port <= 0 {
		return
	}

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("Starting pprof server", slog.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Pprof server error", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			slog.Error("Error shutting down pprof server", slog.Any("error", err))
		}
	}()
}

// Handler routes /debug/pprof/ on its own mux so profiling never leaks onto
// http.DefaultServeMux.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

func PortFromEnv() int {
	envPort := os.Getenv("PPROF_PORT")
	switch envPort {
	case "":
		return DefaultPprofPort
	case "0", "false", "off":
		return 0
	}

	port, err := strconv.Atoi(envPort)
	if err != nil || port < 0 || port > 65535 {
		slog.Warn("Invalid PPROF_PORT value, using default", slog.String("value", envPort), slog.Int("default", DefaultPprofPort))
		return DefaultPprofPort
	}
	return port
}
