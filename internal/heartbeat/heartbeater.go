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

// Package heartbeat runs a callback on a fixed interval for as long as a
// unit of work is in progress.
package heartbeat

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

type HeartbeatFunc func(ctx context.Context) error

// Heartbeater calls its function once immediately and then every interval
// until the context returned by Start is cancelled.
type Heartbeater struct {
	heartbeatFunc HeartbeatFunc
	ll            *slog.Logger
	interval      time.Duration
	beats         atomic.Int64
	failures      atomic.Int64
}

func New(heartbeatFunc HeartbeatFunc, interval time.Duration, logger *slog.Logger) *Heartbeater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeater{
		heartbeatFunc: heartbeatFunc,
		ll:            logger.With("component", "heartbeater"),
		interval:      interval,
	}
}

// Start runs the loop in a goroutine. The returned function stops it and
// waits for the loop to exit.
func (h *Heartbeater) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Beats is the number of successful calls so far.
func (h *Heartbeater) Beats() int64 { return h.beats.Load() }

// Failures is the number of failed calls so far.
func (h *Heartbeater) Failures() int64 { return h.failures.Load() }

func (h *Heartbeater) run(ctx context.Context) {
	h.beat(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *Heartbeater) beat(ctx context.Context) {
	if err := h.heartbeatFunc(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		h.failures.Add(1)
		h.ll.Error("Failed to send heartbeat (continuing)", slog.Any("error", err))
		return
	}
	h.beats.Add(1)
}
