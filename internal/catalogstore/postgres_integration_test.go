//go:build integration

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
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/catalogrunner/internal/catalog"
	"github.com/cardinalhq/catalogrunner/internal/catalogstore/migrations"
	"github.com/cardinalhq/catalogrunner/testhelpers"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	pool := testhelpers.SetupTestCatalogDB(t)
	require.NoError(t, migrations.CheckVersion(ctx, pool))

	s := NewPostgresStore(pool)

	rec := catalog.Record{ID: "a1", Price: decimal.RequireFromString("12.50"), Title: "Lamp", Description: "Desk lamp"}
	require.NoError(t, s.PutRecord(ctx, rec))
	require.NoError(t, s.PutQuantity(ctx, catalog.Quantity{ProductID: "a1", Count: 3}))

	got, err := s.GetRecord(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.True(t, rec.Price.Equal(got.Price))
	assert.Equal(t, rec.Title, got.Title)

	q, err := s.GetQuantity(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), q.Count)

	_, err = s.GetRecord(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	records, err := s.ListRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	quantities, err := s.ListQuantities(ctx)
	require.NoError(t, err)
	assert.Len(t, quantities, 1)
}
