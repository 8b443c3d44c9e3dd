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

// Package notify publishes batch completion notifications. Publishing is
// fire-and-forget from the caller's point of view: a failure is reported
// but never changes the outcome of the batch.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cardinalhq/catalogrunner/internal/catalog"
	"github.com/cardinalhq/catalogrunner/internal/logctx"
)

type Publisher interface {
	Publish(ctx context.Context, n catalog.BatchNotification) error
}

const (
	BackendSNS   = "sns"
	BackendKafka = "kafka"
	BackendLog   = "log"
	BackendNone  = "none"
)

func encodeBody(n catalog.BatchNotification) ([]byte, error) {
	b, err := json.Marshal(n.Body())
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return b, nil
}

// LogPublisher writes notifications to the context logger.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, n catalog.BatchNotification) error {
	logctx.FromContext(ctx).Info("Batch notification",
		slog.String("subject", n.Subject),
		slog.Int("count", n.Count),
		slog.Any("productIds", n.CreatedIDs))
	return nil
}

// NopPublisher discards notifications.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, catalog.BatchNotification) error { return nil }

// Recorder keeps every notification it is given. Err, when set, is returned
// from Publish after recording.
type Recorder struct {
	mu   sync.Mutex
	sent []catalog.BatchNotification
	Err  error
}

func (r *Recorder) Publish(_ context.Context, n catalog.BatchNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.Err
}

func (r *Recorder) Sent() []catalog.BatchNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]catalog.BatchNotification, len(r.sent))
	copy(out, r.sent)
	return out
}
