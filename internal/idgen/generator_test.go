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

package idgen

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForFormat(t *testing.T) {
	g, err := ForFormat("")
	require.NoError(t, err)
	_, err = uuid.Parse(g.NewID())
	assert.NoError(t, err)

	g, err = ForFormat("ULID")
	require.NoError(t, err)
	_, err = ulid.Parse(g.NewID())
	assert.NoError(t, err)

	_, err = ForFormat("snowflake")
	assert.Error(t, err)
}

func TestGeneratorsAreUniqueUnderConcurrency(t *testing.T) {
	for _, format := range []string{FormatUUID, FormatULID} {
		t.Run(format, func(t *testing.T) {
			g, err := ForFormat(format)
			require.NoError(t, err)

			const workers, per = 8, 250
			var mu sync.Mutex
			seen := make(map[string]struct{}, workers*per)
			var wg sync.WaitGroup
			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range per {
						id := g.NewID()
						mu.Lock()
						seen[id] = struct{}{}
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Len(t, seen, workers*per)
		})
	}
}

func TestULIDsAreMonotonic(t *testing.T) {
	g := NewULIDGenerator()
	prev := g.NewID()
	for range 100 {
		next := g.NewID()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestFlakeGenerator(t *testing.T) {
	g, err := NewFlakeGenerator()
	if err != nil {
		t.Skipf("sonyflake unavailable on this host: %v", err)
	}
	a := g.NextID()
	b := g.NextID()
	assert.Positive(t, a)
	assert.Greater(t, b, a)
	assert.Positive(t, InstanceID())
}

func TestShortID(t *testing.T) {
	id := ShortID()
	assert.Len(t, id, 8)
	assert.NotEqual(t, id, ShortID())
}
