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
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(n int) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = Entry{ID: strconv.Itoa(i), Body: `{"n":"` + strconv.Itoa(i) + `"}`}
	}
	return out
}

func TestMemoryQueue_SendReceiveAck(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(time.Minute, 0)

	failed, err := q.SendBatch(ctx, entries(3))
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Equal(t, 3, q.Len())

	got, err := q.Receive(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, `{"n":"0"}`, got[0].Body)
	assert.Equal(t, `{"n":"1"}`, got[1].Body)

	rest, err := q.Receive(ctx, 5)
	require.NoError(t, err)
	require.Len(t, rest, 1, "received messages stay invisible")

	require.NoError(t, q.Ack(ctx, got))
	assert.Equal(t, 1, q.Len())
}

func TestMemoryQueue_RedeliversAfterVisibilityTimeout(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(30*time.Second, 0)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	_, err := q.SendBatch(ctx, entries(1))
	require.NoError(t, err)

	first, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	none, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, none)

	now = now.Add(31 * time.Second)
	again, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, first[0].ID, again[0].ID)
	assert.NotEqual(t, first[0].ReceiptHandle, again[0].ReceiptHandle)

	// A stale receipt no longer deletes the message.
	require.NoError(t, q.Ack(ctx, first))
	assert.Equal(t, 1, q.Len())
	require.NoError(t, q.Ack(ctx, again))
	assert.Equal(t, 0, q.Len())
}

func TestMemoryQueue_RejectsOversizedBatch(t *testing.T) {
	q := NewMemoryQueue(time.Minute, 0)
	_, err := q.SendBatch(context.Background(), entries(MaxSendBatch+1))
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestMemoryQueue_ReceiveWaitsForSend(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(time.Minute, 2*time.Second)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = q.SendBatch(ctx, entries(1))
	}()

	got, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFailAll(t *testing.T) {
	failures := FailAll(entries(2), assert.AnError)
	require.Len(t, failures, 2)
	assert.Equal(t, "0", failures[0].ID)
	assert.Equal(t, "1", failures[1].ID)
	assert.Equal(t, assert.AnError.Error(), failures[0].Reason)
}

func TestPoller_AcksOnlyReturnedDeliveries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue(time.Hour, 50*time.Millisecond)
	_, err := q.SendBatch(ctx, []Entry{
		{ID: "0", Body: "keep"},
		{ID: "1", Body: "ack"},
		{ID: "2", Body: "ack"},
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []string
	p := &Poller{
		Queue:     q,
		Name:      "test",
		BatchSize: 3,
		Handler: func(_ context.Context, batch []Delivery) []Delivery {
			var ack []Delivery
			mu.Lock()
			defer mu.Unlock()
			for _, d := range batch {
				seen = append(seen, d.Body)
				if d.Body == "ack" {
					ack = append(ack, d)
				}
			}
			return ack
		},
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return q.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"keep"}, q.Bodies())
	mu.Lock()
	assert.ElementsMatch(t, []string{"keep", "ack", "ack"}, seen)
	mu.Unlock()
}

func TestPoller_RequiresQueueAndHandler(t *testing.T) {
	p := &Poller{Name: "empty"}
	assert.Error(t, p.Run(context.Background()))
}

func TestMemoryQueue_Extend(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(30*time.Second, 0)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	_, err := q.SendBatch(ctx, entries(1))
	require.NoError(t, err)
	got, err := q.Receive(ctx, 1)
	require.NoError(t, err)

	now = now.Add(20 * time.Second)
	require.NoError(t, q.Extend(ctx, got, time.Minute))

	now = now.Add(30 * time.Second)
	none, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, none, "extended message stays invisible")

	now = now.Add(31 * time.Second)
	again, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestPoller_HeartbeatPreventsRedelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue(60*time.Millisecond, 20*time.Millisecond)
	_, err := q.SendBatch(ctx, entries(1))
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	p := &Poller{
		Queue:       q,
		Name:        "slow",
		BatchSize:   1,
		MaxInFlight: 2,
		Heartbeat:   20 * time.Millisecond,
		Handler: func(_ context.Context, batch []Delivery) []Delivery {
			mu.Lock()
			calls++
			mu.Unlock()
			time.Sleep(200 * time.Millisecond)
			return batch
		},
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return q.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}
