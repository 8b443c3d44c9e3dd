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

package workqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/catalogrunner/internal/logctx"
)

// Depther reports how many messages are waiting in a queue.
type Depther interface {
	Depth(ctx context.Context) (int64, error)
}

// DepthMonitor polls named queues and publishes their depth as an
// observable gauge. Observations read the cached values.
type DepthMonitor struct {
	queues       map[string]Depther
	pollInterval time.Duration

	mu         sync.RWMutex
	lastDepths map[string]int64
	lastUpdate time.Time
	lastError  error

	registration metric.Registration
}

func NewDepthMonitor(queues map[string]Depther, pollInterval time.Duration) (*DepthMonitor, error) {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	m := &DepthMonitor{
		queues:       queues,
		pollInterval: pollInterval,
		lastDepths:   make(map[string]int64, len(queues)),
	}

	meter := otel.Meter("github.com/cardinalhq/catalogrunner/internal/workqueue")
	gauge, err := meter.Int64ObservableGauge(
		"catalogrunner.queue.depth",
		metric.WithDescription("Approximate number of visible messages by queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue depth gauge: %w", err)
	}
	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, d := range m.Depths() {
			o.ObserveInt64(gauge, d.Depth, metric.WithAttributes(attribute.String("queue", d.Name)))
		}
		return nil
	}, gauge)
	if err != nil {
		return nil, fmt.Errorf("failed to register queue depth callback: %w", err)
	}
	m.registration = reg
	return m, nil
}

// Run polls until ctx is done, then unregisters the gauge callback.
func (m *DepthMonitor) Run(ctx context.Context) error {
	defer func() { _ = m.registration.Unregister() }()
	ll := logctx.FromContext(ctx)

	if err := m.Poll(ctx); err != nil {
		ll.Warn("Initial queue depth poll failed", slog.Any("error", err))
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Poll(ctx); err != nil {
				ll.Warn("Failed to poll queue depths", slog.Any("error", err))
			}
		}
	}
}

// Poll refreshes every queue's cached depth. Queues that fail keep their
// previous value.
func (m *DepthMonitor) Poll(ctx context.Context) error {
	var firstErr error
	depths := make(map[string]int64, len(m.queues))
	for name, q := range m.queues {
		d, err := q.Depth(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("queue %s: %w", name, err)
			}
			continue
		}
		depths[name] = d
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for name, d := range depths {
		m.lastDepths[name] = d
	}
	m.lastUpdate = time.Now()
	m.lastError = firstErr
	return firstErr
}

type QueueDepth struct {
	Name  string
	Depth int64
}

// Depths returns the cached depths sorted by queue name.
func (m *DepthMonitor) Depths() []QueueDepth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]QueueDepth, 0, len(m.queues))
	for name := range m.queues {
		out = append(out, QueueDepth{Name: name, Depth: m.lastDepths[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LastError is the error from the most recent poll, if any.
func (m *DepthMonitor) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}
