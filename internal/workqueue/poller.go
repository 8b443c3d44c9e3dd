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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/catalogrunner/internal/heartbeat"
	"github.com/cardinalhq/catalogrunner/internal/logctx"
)

var (
	receivedCounter metric.Int64Counter
	ackedCounter    metric.Int64Counter
	ackErrorCounter metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/catalogrunner/internal/workqueue")

	var err error
	receivedCounter, err = meter.Int64Counter(
		"catalogrunner.workqueue.received",
		metric.WithDescription("Messages received from the work queue"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create received counter: %w", err))
	}

	ackedCounter, err = meter.Int64Counter(
		"catalogrunner.workqueue.acked",
		metric.WithDescription("Messages acknowledged and removed from the work queue"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create acked counter: %w", err))
	}

	ackErrorCounter, err = meter.Int64Counter(
		"catalogrunner.workqueue.ack.errors",
		metric.WithDescription("Failed acknowledgement calls"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create ack.errors counter: %w", err))
	}
}

// Handler processes one received batch and returns the deliveries that may
// be acknowledged. Anything not returned is left for redelivery.
type Handler func(ctx context.Context, batch []Delivery) []Delivery

// Poller repeatedly receives batches and hands them to a Handler, running
// up to MaxInFlight handlers at once.
type Poller struct {
	Queue       Queue
	Handler     Handler
	Name        string
	BatchSize   int
	MaxInFlight int
	Timeout     time.Duration
	ErrBackoff  time.Duration

	// Heartbeat, when set and the queue is an Extender, extends the
	// visibility of a batch by twice this interval while it is handled.
	Heartbeat time.Duration
}

func (p *Poller) Run(ctx context.Context) error {
	if p.Queue == nil || p.Handler == nil {
		return fmt.Errorf("poller %q: queue and handler are required", p.Name)
	}
	batchSize := max(p.BatchSize, 1)
	inFlight := max(p.MaxInFlight, 1)
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := p.ErrBackoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}

	ll := logctx.FromContext(ctx).With(slog.String("poller", p.Name))
	ll.Info("Starting queue polling loop", slog.Int("batchSize", batchSize), slog.Int("maxInFlight", inFlight))

	sem := make(chan struct{}, inFlight)
	var wg sync.WaitGroup
	defer wg.Wait()

	attrs := metric.WithAttributes(attribute.String("poller", p.Name))

	for {
		select {
		case <-ctx.Done():
			ll.Info("Queue polling loop stopped")
			return nil
		case sem <- struct{}{}:
		}

		batch, err := p.Queue.Receive(ctx, batchSize)
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				ll.Info("Queue polling loop stopped")
				return nil
			}
			ll.Error("Failed to receive messages", slog.Any("error", err))
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			continue
		}
		if len(batch) == 0 {
			<-sem
			continue
		}
		receivedCounter.Add(ctx, int64(len(batch)), attrs)

		wg.Add(1)
		go func(batch []Delivery) {
			defer wg.Done()
			defer func() { <-sem }()
			p.process(ctx, ll, batch, timeout, attrs)
		}(batch)
	}
}

func (p *Poller) process(ctx context.Context, ll *slog.Logger, batch []Delivery, timeout time.Duration, attrs metric.MeasurementOption) {
	batchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	batchCtx = logctx.WithLogger(batchCtx, ll)

	stopHeartbeat := func() {}
	if ext, ok := p.Queue.(Extender); ok && p.Heartbeat > 0 {
		hb := heartbeat.New(func(ctx context.Context) error {
			return ext.Extend(ctx, batch, 2*p.Heartbeat)
		}, p.Heartbeat, ll)
		stopHeartbeat = hb.Start(batchCtx)
	}

	ack := p.Handler(batchCtx, batch)
	stopHeartbeat()
	if len(ack) == 0 {
		ll.Warn("Leaving batch on queue for redelivery", slog.Int("messages", len(batch)))
		return
	}

	// Acknowledge with a fresh context so a shutdown does not strand work
	// that already succeeded.
	ackCtx, ackCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ackCancel()
	if err := p.Queue.Ack(ackCtx, ack); err != nil {
		ackErrorCounter.Add(ctx, 1, attrs)
		ll.Error("Failed to acknowledge messages after successful handling",
			slog.Any("error", err), slog.Int("messages", len(ack)))
		return
	}
	ackedCounter.Add(ctx, int64(len(ack)), attrs)
	ll.Debug("Batch acknowledged", slog.Int("acked", len(ack)), slog.Int("received", len(batch)))
}
