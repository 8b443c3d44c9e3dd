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
	"strconv"
	"sync"
	"time"

	"github.com/cardinalhq/catalogrunner/internal/idgen"
)

// MemoryQueue is an in-process Queue with SQS-like visibility semantics.
type MemoryQueue struct {
	mu         sync.Mutex
	messages   []*memMessage
	visibility time.Duration
	wait       time.Duration
	now        func() time.Time
	ready      chan struct{}
	receipts   uint64
}

type memMessage struct {
	id        string
	body      string
	receipt   string
	visibleAt time.Time
	received  int
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue(visibility, wait time.Duration) *MemoryQueue {
	return &MemoryQueue{
		visibility: visibility,
		wait:       wait,
		now:        time.Now,
		ready:      make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) SendBatch(_ context.Context, entries []Entry) ([]EntryFailure, error) {
	if len(entries) > MaxSendBatch {
		return nil, fmt.Errorf("%w: %d entries", ErrBatchTooLarge, len(entries))
	}
	q.mu.Lock()
	for _, e := range entries {
		q.messages = append(q.messages, &memMessage{
			id:   idgen.ShortID(),
			body: e.Body,
		})
	}
	q.mu.Unlock()
	q.signal()
	return nil, nil
}

func (q *MemoryQueue) Receive(ctx context.Context, max int) ([]Delivery, error) {
	var timer <-chan time.Time
	if q.wait > 0 {
		t := time.NewTimer(q.wait)
		defer t.Stop()
		timer = t.C
	}

	for {
		if out := q.take(max); len(out) > 0 {
			return out, nil
		}
		if timer == nil {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer:
			return q.take(max), nil
		case <-q.ready:
		case <-time.After(q.pollInterval()):
		}
	}
}

func (q *MemoryQueue) Ack(_ context.Context, deliveries []Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, d := range deliveries {
		for i, m := range q.messages {
			if m.receipt != "" && m.receipt == d.ReceiptHandle {
				q.messages = append(q.messages[:i], q.messages[i+1:]...)
				break
			}
		}
	}
	return nil
}

// Len is the number of messages not yet acknowledged, visible or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

func (q *MemoryQueue) Extend(_ context.Context, deliveries []Delivery, visibility time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	until := q.now().Add(visibility)
	for _, d := range deliveries {
		for _, m := range q.messages {
			if m.receipt != "" && m.receipt == d.ReceiptHandle {
				m.visibleAt = until
				break
			}
		}
	}
	return nil
}

// Depth counts the messages currently visible.
func (q *MemoryQueue) Depth(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	var n int64
	for _, m := range q.messages {
		if !m.visibleAt.After(now) {
			n++
		}
	}
	return n, nil
}

// Bodies returns the bodies of unacknowledged messages in send order.
func (q *MemoryQueue) Bodies() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.messages))
	for _, m := range q.messages {
		out = append(out, m.body)
	}
	return out
}

func (q *MemoryQueue) take(max int) []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var out []Delivery
	for _, m := range q.messages {
		if len(out) >= max {
			break
		}
		if m.visibleAt.After(now) {
			continue
		}
		q.receipts++
		m.receipt = m.id + "-" + strconv.FormatUint(q.receipts, 10)
		m.visibleAt = now.Add(q.visibility)
		m.received++
		out = append(out, Delivery{ID: m.id, ReceiptHandle: m.receipt, Body: m.body})
	}
	return out
}

func (q *MemoryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) pollInterval() time.Duration {
	if q.visibility > 0 && q.visibility < time.Second {
		return q.visibility
	}
	return time.Second
}
