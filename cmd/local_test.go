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

package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/catalogrunner/config"
	"github.com/cardinalhq/catalogrunner/internal/objstore"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunLocal(t *testing.T) {
	path := writeCSV(t, "title,description,price,count\n"+
		"Lamp,Desk lamp,19.99,4\n"+
		"Chair,Office chair,120,2\n"+
		"Mug,Coffee mug,5.5,30\n")
	root := t.TempDir()

	summary, err := runLocal(context.Background(), config.Default(), root, path)
	require.NoError(t, err)

	assert.Equal(t, "inbox/products.csv", summary.Key)
	assert.Equal(t, "processed/products.csv", summary.ProcessedKey)
	assert.Equal(t, 3, summary.Rows)
	assert.Equal(t, 3, summary.Enqueued)
	assert.Equal(t, 0, summary.Abandoned)
	require.Len(t, summary.Items, 3)

	titles := map[string]int64{}
	for _, it := range summary.Items {
		assert.NotEmpty(t, it.Record.ID)
		assert.Equal(t, it.Record.ID, it.Quantity.ProductID)
		titles[it.Record.Title] = it.Quantity.Count
	}
	assert.Equal(t, map[string]int64{"Lamp": 4, "Chair": 2, "Mug": 30}, titles)

	require.Len(t, summary.Notifications, 1)
	assert.Equal(t, 3, summary.Notifications[0].Count)
	assert.Equal(t, "Catalog batch processed", summary.Notifications[0].Subject)

	_, err = os.Stat(filepath.Join(root, "inbox", "products.csv"))
	assert.True(t, os.IsNotExist(err), "source object is relocated")
	_, err = os.Stat(filepath.Join(root, "processed", "products.csv"))
	assert.NoError(t, err)
}

func TestRunLocal_InvalidRowAbandonsItsBatch(t *testing.T) {
	path := writeCSV(t, "title,description,price,count\n"+
		"Lamp,Desk lamp,19.99,4\n"+
		"Broken,No count,1.00,\n"+
		"Mug,Coffee mug,5.5,30\n")

	cfg := config.Default()
	cfg.Consumer.BatchSize = 1

	summary, err := runLocal(context.Background(), cfg, t.TempDir(), path)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Enqueued)
	assert.Equal(t, 1, summary.Abandoned)
	assert.Len(t, summary.Items, 2)
	assert.Len(t, summary.Notifications, 2)
}

func TestImportFile(t *testing.T) {
	path := writeCSV(t, "title\n")
	store := objstore.NewMemStore("catalog")

	_, err := importFile(context.Background(), config.Default(), store, path, "../escape.csv")
	assert.Error(t, err)

	key, err := importFile(context.Background(), config.Default(), store, path, "")
	require.NoError(t, err)
	assert.Equal(t, "inbox/products.csv", key)
}
