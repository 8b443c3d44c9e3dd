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

// Package workqueue carries catalog rows between the parser and the
// consumer. Delivery is at-least-once: a message that is received but not
// acknowledged becomes visible again after the visibility timeout.
package workqueue

import (
	"context"
	"errors"
	"time"
)

// MaxSendBatch is the largest number of entries one SendBatch call accepts.
const MaxSendBatch = 10

var ErrBatchTooLarge = errors.New("batch exceeds maximum send size")

// Entry is one message submitted in a batch. ID is only unique within the
// batch and is how per-entry failures are reported back.
type Entry struct {
	ID   string
	Body string
}

// EntryFailure reports one entry the queue refused.
type EntryFailure struct {
	ID     string
	Code   string
	Reason string
}

// Delivery is a received message. ReceiptHandle is what Ack needs.
type Delivery struct {
	ID            string
	ReceiptHandle string
	Body          string
}

type Queue interface {
	// SendBatch submits up to MaxSendBatch entries. A non-nil error means the
	// whole call failed; otherwise the returned slice lists the entries that
	// were not accepted.
	SendBatch(ctx context.Context, entries []Entry) ([]EntryFailure, error)

	// Receive returns up to max visible messages, waiting for the configured
	// long-poll interval when none are available.
	Receive(ctx context.Context, max int) ([]Delivery, error)

	// Ack removes delivered messages so they are not redelivered.
	Ack(ctx context.Context, deliveries []Delivery) error
}

// Extender is implemented by queues that can push back the redelivery of
// messages still being worked on.
type Extender interface {
	Extend(ctx context.Context, deliveries []Delivery, visibility time.Duration) error
}

// FailAll marks every entry as failed with the same cause. It is used when
// a whole batch-submit call errors.
func FailAll(entries []Entry, err error) []EntryFailure {
	out := make([]EntryFailure, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryFailure{ID: e.ID, Code: "SubmitFailed", Reason: err.Error()})
	}
	return out
}
