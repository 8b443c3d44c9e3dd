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

package testhelpers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/catalogrunner/internal/catalogstore/migrations"
)

// SetupTestCatalogDB creates a throwaway catalog database with migrations
// applied. The database is dropped via t.Cleanup.
func SetupTestCatalogDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	dbName := fmt.Sprintf("test_catalogdb_%d_%d", time.Now().Unix(), rand.Intn(10000))

	host := getEnvOrDefault("CATALOGDB_HOST", "localhost")
	port := getEnvOrDefault("CATALOGDB_PORT", "5432")
	user := getEnvOrDefault("CATALOGDB_USER", os.Getenv("USER"))
	baseDB := getEnvOrDefault("CATALOGDB_DBNAME", "testing_catalogdb")
	password := os.Getenv("CATALOGDB_PASSWORD")

	basePool, err := pgxpool.New(ctx, connString(user, password, host, port, baseDB))
	if err != nil {
		t.Fatalf("Failed to connect to base database: %v", err)
	}

	if _, err := basePool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		basePool.Close()
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}

	testPool, err := pgxpool.New(ctx, connString(user, password, host, port, dbName))
	if err != nil {
		basePool.Close()
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := migrations.RunMigrationsUp(ctx, testPool); err != nil {
		testPool.Close()
		basePool.Close()
		t.Fatalf("Failed to run catalogdb migrations: %v", err)
	}

	t.Cleanup(func() {
		testPool.Close()
		_, err := basePool.Exec(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName))
		if err != nil {
			slog.Error("Failed to drop test database", slog.String("dbName", dbName), slog.Any("error", err))
		}
		basePool.Close()
	})

	return testPool
}

func connString(user, password, host, port, db string) string {
	if password != "" {
		return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, db)
	}
	return fmt.Sprintf("postgresql://%s@%s:%s/%s", user, host, port, db)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
