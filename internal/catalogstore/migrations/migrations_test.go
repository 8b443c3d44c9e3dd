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

package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestEmbeddedFilesArePaired(t *testing.T) {
	entries, err := migrationFiles.ReadDir(".")
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	assert.True(t, names["1_catalog_tables.up.sql"])
	assert.True(t, names["1_catalog_tables.down.sql"])
}

func TestParseCheckMode(t *testing.T) {
	tests := []struct {
		in      string
		want    CheckMode
		wantErr bool
	}{
		{"", CheckModeWait, false},
		{"wait", CheckModeWait, false},
		{"WARN", CheckModeWarn, false},
		{"skip", CheckModeSkip, false},
		{"later", CheckModeWait, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCheckMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckOptions(t *testing.T) {
	opts := DefaultCheckOptions()
	for _, o := range []CheckOption{WithCheckMode(CheckModeWarn), WithAllowDirty(true), WithTimeout(0), WithRetryInterval(0)} {
		o(&opts)
	}
	assert.Equal(t, CheckOptions{Mode: CheckModeWarn, AllowDirty: true}, opts)
}
