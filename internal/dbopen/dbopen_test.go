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

package dbopen

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"URL", "HOST", "PORT", "USER", "PASSWORD", "DBNAME", "SSLMODE"} {
		t.Setenv("CATALOGDB_"+k, "")
	}
	t.Setenv("OTEL_SERVICE_NAME", "")
}

func TestGetDatabaseURLFromEnv_URLWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("CATALOGDB_URL", "postgres://example/catalog")
	t.Setenv("CATALOGDB_HOST", "ignored")

	got, err := GetDatabaseURLFromEnv("CATALOGDB")
	require.NoError(t, err)
	assert.Equal(t, "postgres://example/catalog", got)
}

func TestGetDatabaseURLFromEnv_Parts(t *testing.T) {
	clearEnv(t)
	t.Setenv("CATALOGDB_HOST", "db.local")
	t.Setenv("CATALOGDB_DBNAME", "catalog")
	t.Setenv("CATALOGDB_USER", "runner")
	t.Setenv("CATALOGDB_PASSWORD", "s3cret")
	t.Setenv("CATALOGDB_SSLMODE", "disable")
	t.Setenv("OTEL_SERVICE_NAME", "catalog runner")

	got, err := GetDatabaseURLFromEnv("CATALOGDB_")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "postgresql", u.Scheme)
	assert.Equal(t, "db.local:5432", u.Host)
	assert.Equal(t, "/catalog", u.Path)
	assert.Equal(t, "runner", u.User.Username())
	pass, _ := u.User.Password()
	assert.Equal(t, "s3cret", pass)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "catalog_runner", u.Query().Get("application_name"))
}

func TestGetDatabaseURLFromEnv_Missing(t *testing.T) {
	clearEnv(t)
	_, err := GetDatabaseURLFromEnv("CATALOGDB")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CATALOGDB_HOST")
	assert.Contains(t, err.Error(), "CATALOGDB_DBNAME")
}

func TestResolveURL(t *testing.T) {
	clearEnv(t)
	got, err := ResolveURL("postgres://configured/db", "CATALOGDB")
	require.NoError(t, err)
	assert.Equal(t, "postgres://configured/db", got)

	_, err = ResolveURL("", "CATALOGDB")
	assert.ErrorIs(t, err, ErrDatabaseNotConfigured)
}

func TestModeOptions(t *testing.T) {
	for _, mode := range []string{"wait", "warn", "skip"} {
		opts, err := ModeOptions(mode)
		require.NoError(t, err, mode)
		assert.Len(t, opts.MigrationCheckOptions, 1)
	}
	_, err := ModeOptions("sometimes")
	assert.Error(t, err)

	assert.Len(t, SkipMigrationCheck().MigrationCheckOptions, 1)
	assert.Len(t, WarnOnMigrationMismatch().MigrationCheckOptions, 1)
	assert.Len(t, WaitForMigrations().MigrationCheckOptions, 1)
}

func TestApplicationName(t *testing.T) {
	assert.Equal(t, "", applicationName(""))
	assert.Equal(t, "catalog-runner_v1_2", applicationName("catalog-runner_v1.2"))
	assert.Len(t, applicationName(strings.Repeat("x", 100)), 63)
}
