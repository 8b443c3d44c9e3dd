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

package streamparser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/catalogrunner/internal/logctx"
	"github.com/cardinalhq/catalogrunner/internal/workqueue"
)

const (
	DefaultDedupTTL = 10 * time.Minute

	httpBodyLimitBytes = 1 << 20
)

var duplicateEvents metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/catalogrunner/internal/streamparser")

	var err error
	duplicateEvents, err = meter.Int64Counter(
		"catalogrunner.parser.events.duplicate",
		metric.WithDescription("Object-created events dropped as duplicates"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create events.duplicate counter: %w", err))
	}
}

// EventHandler feeds object-created notifications to a Parser. A key
// that is being parsed, or was parsed successfully within the dedup TTL,
// is not parsed again.
type EventHandler struct {
	parser *Parser
	seen   *ttlcache.Cache[string, struct{}]
}

func NewEventHandler(parser *Parser, dedupTTL time.Duration) *EventHandler {
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}
	return &EventHandler{
		parser: parser,
		seen: ttlcache.New(
			ttlcache.WithTTL[string, struct{}](dedupTTL),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
}

// Start runs expiry of the dedup cache until Stop.
func (h *EventHandler) Start() { go h.seen.Start() }

func (h *EventHandler) Stop() { h.seen.Stop() }

// HandleEvent parses every object in one raw S3 notification. It returns the
// highest status among the objects; 500 means the notification should be
// redelivered.
func (h *EventHandler) HandleEvent(ctx context.Context, raw []byte) Response {
	ll := logctx.FromContext(ctx)

	objects, err := ParseS3Event(raw)
	if err != nil {
		ll.Warn("Discarding unparseable event", slog.Any("error", err))
		return Response{StatusCode: http.StatusBadRequest, Body: "Invalid event"}
	}
	if len(objects) == 0 {
		return Response{StatusCode: http.StatusBadRequest, Body: "No usable object key found in event"}
	}

	worst := Response{StatusCode: http.StatusOK}
	for _, obj := range objects {
		resp := h.HandleKey(ctx, obj.Key)
		if resp.StatusCode >= worst.StatusCode {
			worst = resp
		}
	}
	return worst
}

// HandleKey parses one key unless it was recently parsed or is being parsed
// now. The key is claimed before parsing; the claim is released unless the
// parse succeeds.
func (h *EventHandler) HandleKey(ctx context.Context, key string) Response {
	if _, claimed := h.seen.GetOrSet(key, struct{}{}); claimed {
		logctx.FromContext(ctx).Info("Duplicate object-created event, skipping", slog.String("objectKey", key))
		duplicateEvents.Add(ctx, 1)
		return Response{StatusCode: http.StatusOK, Body: "Duplicate event for " + key}
	}
	resp := h.parser.Handle(ctx, key)
	if resp.StatusCode != http.StatusOK {
		h.seen.Delete(key)
	}
	return resp
}

// QueueHandler adapts the handler to a workqueue.Poller whose messages are
// S3 notifications. Notifications that fail with 500 stay on the queue;
// everything else, including events that can never succeed, is acknowledged.
func (h *EventHandler) QueueHandler(maxConcurrent int) workqueue.Handler {
	maxConcurrent = max(maxConcurrent, 1)
	return func(ctx context.Context, batch []workqueue.Delivery) []workqueue.Delivery {
		sem := make(chan struct{}, maxConcurrent)
		var wg sync.WaitGroup
		var mu sync.Mutex
		var ack []workqueue.Delivery

		for _, d := range batch {
			wg.Add(1)
			sem <- struct{}{}
			go func(d workqueue.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()

				msgCtx, _ := logctx.With(ctx, slog.String("messageId", d.ID))
				resp := h.HandleEvent(msgCtx, []byte(d.Body))
				if resp.StatusCode >= http.StatusInternalServerError {
					return
				}
				mu.Lock()
				ack = append(ack, d)
				mu.Unlock()
			}(d)
		}
		wg.Wait()
		return ack
	}
}

// ServeHTTP accepts an S3 notification as a POST body and answers with the
// handling status.
func (h *EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, httpBodyLimitBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Error reading request body", http.StatusInternalServerError)
		return
	}

	resp := h.HandleEvent(r.Context(), body)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}
