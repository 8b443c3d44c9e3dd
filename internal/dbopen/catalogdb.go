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
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/catalogrunner/internal/catalogstore"
	"github.com/cardinalhq/catalogrunner/internal/catalogstore/migrations"
)

// ConnectToCatalogDB opens a pool to the catalog database without
// checking the schema version. Used by the migrate command.
func ConnectToCatalogDB(ctx context.Context, url string) (*pgxpool.Pool, error) {
	connectionString, err := ResolveURL(url, "CATALOGDB")
	if err != nil {
		return nil, fmt.Errorf("failed to get CATALOGDB connection string: %w", err)
	}
	return catalogstore.NewConnectionPool(ctx, connectionString)
}

// CatalogStore connects and returns a Postgres-backed catalog store once the
// schema version check passes.
func CatalogStore(ctx context.Context, url string, opts ...Options) (*catalogstore.PostgresStore, error) {
	connectionString, err := ResolveURL(url, "CATALOGDB")
	if err != nil {
		return nil, fmt.Errorf("failed to get CATALOGDB connection string: %w", err)
	}

	var checkOpts []migrations.CheckOption
	for _, o := range opts {
		checkOpts = append(checkOpts, o.MigrationCheckOptions...)
	}

	store, err := catalogstore.OpenPostgresStore(ctx, connectionString, checkOpts...)
	if err != nil {
		return nil, fmt.Errorf("CATALOGDB: %w", err)
	}
	return store, nil
}
