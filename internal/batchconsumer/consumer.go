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

// Package batchconsumer writes delivered catalog rows to the record and
// quantity stores and announces each completed batch.
//
// A batch moves Received, Validating, Writing, Notifying, Acknowledged, or
// leaves for Abandoned on a validation or write failure. An abandoned batch
// is not acknowledged and the queue delivers it again after the visibility
// timeout. Writes that already succeeded stay; the redelivery creates the
// rows again under new IDs.
package batchconsumer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/catalogrunner/internal/catalog"
	"github.com/cardinalhq/catalogrunner/internal/catalogstore"
	"github.com/cardinalhq/catalogrunner/internal/idgen"
	"github.com/cardinalhq/catalogrunner/internal/logctx"
	"github.com/cardinalhq/catalogrunner/internal/notify"
	"github.com/cardinalhq/catalogrunner/internal/workqueue"
)

const (
	DefaultBatchSize = 5

	bodySucceeded = "Batch processed succeeded"
	bodyFailed    = `{"success":false,"error":"Internal Server Error"}`
)

var (
	batchCounter         metric.Int64Counter
	recordsWritten       metric.Int64Counter
	writeFailures        metric.Int64Counter
	notificationsCounter metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/catalogrunner/internal/batchconsumer")

	var err error
	batchCounter, err = meter.Int64Counter(
		"catalogrunner.consumer.batches",
		metric.WithDescription("Delivered batches by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create batches counter: %w", err))
	}

	recordsWritten, err = meter.Int64Counter(
		"catalogrunner.consumer.records.written",
		metric.WithDescription("Records written with their quantities"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create records.written counter: %w", err))
	}

	writeFailures, err = meter.Int64Counter(
		"catalogrunner.consumer.writes.failed",
		metric.WithDescription("Failed store writes by store"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create writes.failed counter: %w", err))
	}

	notificationsCounter, err = meter.Int64Counter(
		"catalogrunner.consumer.notifications",
		metric.WithDescription("Batch notifications by result"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create notifications counter: %w", err))
	}
}

// Message is one delivered work message.
type Message struct {
	ID   string `json:"messageId,omitempty"`
	Body string `json:"body"`
}

// Batch is one delivery of up to the configured batch size of messages.
type Batch struct {
	Records []Message `json:"records"`
}

// Response is the structured result of one invocation.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Result lists what a successful batch created.
type Result struct {
	CreatedIDs []string
	Notified   bool
}

type Consumer struct {
	records             catalogstore.RecordStore
	quantities          catalogstore.QuantityStore
	publisher           notify.Publisher
	ids                 idgen.Generator
	subject             string
	maxConcurrentWrites int
}

type Option func(*Consumer)

func WithPublisher(p notify.Publisher) Option {
	return func(c *Consumer) { c.publisher = p }
}

func WithIDGenerator(g idgen.Generator) Option {
	return func(c *Consumer) { c.ids = g }
}

func WithSubject(subject string) Option {
	return func(c *Consumer) { c.subject = subject }
}

// WithMaxConcurrentWrites bounds in-flight store writes per batch. Zero or
// less means every write of the batch runs at once.
func WithMaxConcurrentWrites(n int) Option {
	return func(c *Consumer) { c.maxConcurrentWrites = n }
}

func NewConsumer(records catalogstore.RecordStore, quantities catalogstore.QuantityStore, opts ...Option) *Consumer {
	c := &Consumer{
		records:    records,
		quantities: quantities,
		ids:        idgen.UUIDGenerator{},
		subject:    catalog.NotificationSubject,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle processes batch and converts the outcome to a Response. Only a 200
// response means the batch may be acknowledged.
func (c *Consumer) Handle(ctx context.Context, batch Batch) Response {
	ctx, ll := logctx.With(ctx, slog.Int("batchSize", len(batch.Records)))

	res, err := c.Process(ctx, batch)
	if err != nil {
		outcome := "write_failed"
		if catalog.IsValidation(err) {
			outcome = "invalid"
		}
		batchCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		ll.Error("Abandoning batch for redelivery", slog.String("outcome", outcome), slog.Any("error", err))
		return Response{StatusCode: http.StatusInternalServerError, Body: bodyFailed}
	}

	batchCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "acknowledged")))
	ll.Info("Batch processed", slog.Int("created", len(res.CreatedIDs)), slog.Bool("notified", res.Notified))
	return Response{StatusCode: http.StatusOK, Body: bodySucceeded}
}

// Process validates every message, then writes each row to both stores.
// Nothing is written unless every message in the batch is valid.
func (c *Consumer) Process(ctx context.Context, batch Batch) (Result, error) {
	items := make([]catalog.Item, 0, len(batch.Records))
	for i, m := range batch.Records {
		item, err := decode(m.Body)
		if err != nil {
			logctx.FromContext(ctx).Warn("Invalid message in batch",
				slog.Int("index", i), slog.String("messageId", m.ID), slog.Any("error", err))
			return Result{}, err
		}
		items = append(items, item.WithID(c.ids.NewID()))
	}

	if err := c.write(ctx, items); err != nil {
		return Result{}, err
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.Record.ID
	}
	recordsWritten.Add(ctx, int64(len(ids)))

	return Result{CreatedIDs: ids, Notified: c.notify(ctx, ids)}, nil
}

func decode(body string) (catalog.Item, error) {
	row, err := catalog.DecodeRow(body)
	if err != nil {
		return catalog.Item{}, err
	}
	rec, qty, err := row.Validate()
	if err != nil {
		return catalog.Item{}, err
	}
	return catalog.Item{Record: rec, Quantity: qty}, nil
}

// write issues every put concurrently and waits for all of them, so one
// failure never cancels the others.
func (c *Consumer) write(ctx context.Context, items []catalog.Item) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		merr *multierror.Error
	)
	if c.maxConcurrentWrites > 0 {
		g.SetLimit(c.maxConcurrentWrites)
	}

	fail := func(store string, id string, err error) {
		writeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("store", store)))
		mu.Lock()
		merr = multierror.Append(merr, fmt.Errorf("%s %s: %w", store, id, err))
		mu.Unlock()
	}

	for _, it := range items {
		g.Go(func() error {
			if err := c.records.PutRecord(ctx, it.Record); err != nil {
				fail("record", it.Record.ID, err)
			}
			return nil
		})
		g.Go(func() error {
			if err := c.quantities.PutQuantity(ctx, it.Quantity); err != nil {
				fail("quantity", it.Quantity.ProductID, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if merr == nil {
		return nil
	}
	return &catalog.BatchWriteError{
		Attempted: 2 * len(items),
		Failed:    merr.Len(),
		Err:       merr.ErrorOrNil(),
	}
}

// notify publishes the batch notification. A failure is logged and never
// changes the batch outcome.
func (c *Consumer) notify(ctx context.Context, ids []string) bool {
	if c.publisher == nil || len(ids) == 0 {
		return false
	}
	err := c.publisher.Publish(ctx, catalog.NewBatchNotification(c.subject, ids))
	if err != nil {
		notificationsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
		logctx.FromContext(ctx).Error("Failed to publish batch notification", slog.Any("error", err))
		return false
	}
	notificationsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "published")))
	return true
}

// QueueHandler adapts the consumer to a workqueue.Poller: a received batch
// is acknowledged as a whole when Handle answers 200.
func (c *Consumer) QueueHandler() workqueue.Handler {
	return func(ctx context.Context, deliveries []workqueue.Delivery) []workqueue.Delivery {
		batch := Batch{Records: make([]Message, len(deliveries))}
		for i, d := range deliveries {
			batch.Records[i] = Message{ID: d.ID, Body: d.Body}
		}
		if c.Handle(ctx, batch).StatusCode != http.StatusOK {
			return nil
		}
		return deliveries
	}
}
