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
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/catalogrunner/config"
	"github.com/cardinalhq/catalogrunner/internal/catalogstore/migrations"
	"github.com/cardinalhq/catalogrunner/internal/dbopen"
)

func init() {
	var checkOnly bool

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run catalog database migrations",
		Long:  `Applies the catalog store schema to the Postgres database named by stores.postgres_url or the CATALOGDB_* environment.`,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if checkOnly {
				return checkCatalogDB(c.Context(), cfg)
			}
			return migrateCatalogDB(c.Context(), cfg)
		},
	}
	migrateCmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether the schema is current")
	rootCmd.AddCommand(migrateCmd)
}

func migrateCatalogDB(ctx context.Context, cfg *config.Config) error {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	pool, err := dbopen.ConnectToCatalogDB(connectCtx, cfg.Stores.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	slog.Info("Running catalogdb migrations")
	if err := migrations.RunMigrationsUp(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate catalogdb: %w", err)
	}
	slog.Info("catalogdb migrations completed successfully")
	return nil
}

func checkCatalogDB(ctx context.Context, cfg *config.Config) error {
	pool, err := dbopen.ConnectToCatalogDB(ctx, cfg.Stores.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Wait mode with no timeout fails fast instead of polling.
	return migrations.CheckVersion(ctx, pool,
		migrations.WithCheckMode(migrations.CheckModeWait),
		migrations.WithTimeout(0),
	)
}
