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

// Package migrations holds the embedded schema for the Postgres catalog
// store and the helpers that apply and verify it.
package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed *.sql
var migrationFiles embed.FS

const migrationsTable = "gomigrate_catalogdb"

// CheckMode defines how version checking reacts to a mismatch.
type CheckMode int

const (
	// CheckModeWait waits for migrations to be applied, failing after the timeout.
	CheckModeWait CheckMode = iota
	// CheckModeWarn logs the mismatch and continues.
	CheckModeWarn
	// CheckModeSkip does not check.
	CheckModeSkip
)

type CheckOptions struct {
	Mode          CheckMode
	Timeout       time.Duration
	RetryInterval time.Duration
	AllowDirty    bool
}

type CheckOption func(*CheckOptions)

func WithCheckMode(mode CheckMode) CheckOption {
	return func(o *CheckOptions) { o.Mode = mode }
}

func WithTimeout(timeout time.Duration) CheckOption {
	return func(o *CheckOptions) { o.Timeout = timeout }
}

func WithRetryInterval(interval time.Duration) CheckOption {
	return func(o *CheckOptions) { o.RetryInterval = interval }
}

func WithAllowDirty(allow bool) CheckOption {
	return func(o *CheckOptions) { o.AllowDirty = allow }
}

func DefaultCheckOptions() CheckOptions {
	return CheckOptions{
		Mode:          CheckModeWait,
		Timeout:       120 * time.Second,
		RetryInterval: 5 * time.Second,
	}
}

// ParseCheckMode maps "wait", "warn" and "skip" to a CheckMode.
func ParseCheckMode(s string) (CheckMode, error) {
	switch strings.ToLower(s) {
	case "", "wait":
		return CheckModeWait, nil
	case "warn":
		return CheckModeWarn, nil
	case "skip":
		return CheckModeSkip, nil
	}
	return CheckModeWait, fmt.Errorf("unknown migration check mode %q", s)
}

func newMigrate(pool *pgxpool.Pool) (*migrate.Migrate, func(), error) {
	sourceDriver, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create iofs driver: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	dbDriver, err := pgx.WithInstance(sqlDB, &pgx.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to create pgx driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		_ = dbDriver.Close()
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	cleanup := func() {
		_ = dbDriver.Close()
		_ = sqlDB.Close()
	}
	return m, cleanup, nil
}

// RunMigrationsUp applies all pending up migrations.
func RunMigrationsUp(ctx context.Context, pool *pgxpool.Pool) error {
	m, cleanup, err := newMigrate(pool)
	if err != nil {
		return err
	}
	defer cleanup()

	_, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if dirty {
		return errors.New("migration is dirty, please fix it before proceeding")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, _, _ := m.Version()
	slog.Info("Catalog database migrated", slog.Uint64("version", uint64(version)))
	return nil
}

// CheckVersion verifies the database is at the latest embedded version.
func CheckVersion(ctx context.Context, pool *pgxpool.Pool, options ...CheckOption) error {
	opts := DefaultCheckOptions()
	for _, option := range options {
		option(&opts)
	}
	if opts.Mode == CheckModeSkip {
		slog.Debug("Migration version checking skipped for catalogdb")
		return nil
	}

	expected, err := LatestVersion()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(opts.Timeout)
	for {
		current, dirty, err := currentVersion(pool)
		if err != nil {
			return fmt.Errorf("failed to get current migration version: %w", err)
		}
		if dirty && !opts.AllowDirty {
			if opts.Mode != CheckModeWarn {
				return errors.New("catalogdb migration is in dirty state, please fix before proceeding")
			}
			slog.Warn("Database migration is in dirty state, but continuing anyway")
		}
		if current == expected {
			return nil
		}
		if current > expected {
			if opts.Mode == CheckModeWarn {
				slog.Warn("Database version is newer than expected, but continuing anyway",
					slog.Uint64("current_version", uint64(current)),
					slog.Uint64("expected_version", uint64(expected)))
				return nil
			}
			return fmt.Errorf("catalogdb version %d is newer than expected version %d", current, expected)
		}
		if opts.Mode == CheckModeWarn {
			slog.Warn("Database version is older than expected, but continuing anyway",
				slog.Uint64("current_version", uint64(current)),
				slog.Uint64("expected_version", uint64(expected)))
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for catalogdb migrations: at version %d, want %d", current, expected)
		}
		slog.Info("Waiting for catalogdb migrations",
			slog.Uint64("current_version", uint64(current)),
			slog.Uint64("expected_version", uint64(expected)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.RetryInterval):
		}
	}
}

func currentVersion(pool *pgxpool.Pool) (uint, bool, error) {
	m, cleanup, err := newMigrate(pool)
	if err != nil {
		return 0, false, err
	}
	defer cleanup()
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// LatestVersion is the highest version among the embedded up migrations.
func LatestVersion() (uint, error) {
	entries, err := migrationFiles.ReadDir(".")
	if err != nil {
		return 0, fmt.Errorf("failed to read migration directory: %w", err)
	}

	var latest uint
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		latest = max(latest, uint(v))
	}
	if latest == 0 {
		return 0, errors.New("no valid migration files found")
	}
	return latest, nil
}
