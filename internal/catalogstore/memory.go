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

package catalogstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cardinalhq/catalogrunner/internal/catalog"
)

// MemoryStore keeps both tables in maps. Writes overwrite by key.
type MemoryStore struct {
	mu         sync.RWMutex
	records    map[string]catalog.Record
	quantities map[string]catalog.Quantity
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    map[string]catalog.Record{},
		quantities: map[string]catalog.Quantity{},
	}
}

func (m *MemoryStore) PutRecord(ctx context.Context, r catalog.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = r
	return nil
}

func (m *MemoryStore) GetRecord(_ context.Context, id string) (catalog.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return catalog.Record{}, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (m *MemoryStore) ListRecords(context.Context) ([]catalog.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]catalog.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) PutQuantity(ctx context.Context, q catalog.Quantity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quantities[q.ProductID] = q
	return nil
}

func (m *MemoryStore) GetQuantity(_ context.Context, productID string) (catalog.Quantity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quantities[productID]
	if !ok {
		return catalog.Quantity{}, fmt.Errorf("quantity %s: %w", productID, ErrNotFound)
	}
	return q, nil
}

func (m *MemoryStore) ListQuantities(context.Context) ([]catalog.Quantity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]catalog.Quantity, 0, len(m.quantities))
	for _, q := range m.quantities {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
