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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDepther struct{}

func (failingDepther) Depth(context.Context) (int64, error) {
	return 0, errors.New("throttled")
}

func TestDepthMonitor_Poll(t *testing.T) {
	ctx := context.Background()
	rows := NewMemoryQueue(time.Minute, 0)
	_, err := rows.SendBatch(ctx, []Entry{{ID: "0", Body: "{}"}, {ID: "1", Body: "{}"}})
	require.NoError(t, err)

	m, err := NewDepthMonitor(map[string]Depther{
		"rows":   rows,
		"events": failingDepther{},
	}, time.Second)
	require.NoError(t, err)

	err = m.Poll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events")
	assert.Equal(t, err, m.LastError())
	assert.Equal(t, []QueueDepth{{Name: "events", Depth: 0}, {Name: "rows", Depth: 2}}, m.Depths())

	// Received messages are invisible and no longer counted.
	_, err = rows.Receive(ctx, 1)
	require.NoError(t, err)
	_ = m.Poll(ctx)
	assert.Equal(t, int64(1), m.Depths()[1].Depth)
}

func TestDepthMonitor_RunStops(t *testing.T) {
	m, err := NewDepthMonitor(map[string]Depther{"rows": NewMemoryQueue(0, 0)}, 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
