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

import "github.com/cardinalhq/catalogrunner/internal/catalogstore/migrations"

// Options configures how a connection treats the schema version.
type Options struct {
	MigrationCheckOptions []migrations.CheckOption
}

func SkipMigrationCheck() Options {
	return Options{
		MigrationCheckOptions: []migrations.CheckOption{
			migrations.WithCheckMode(migrations.CheckModeSkip),
		},
	}
}

func WarnOnMigrationMismatch() Options {
	return Options{
		MigrationCheckOptions: []migrations.CheckOption{
			migrations.WithCheckMode(migrations.CheckModeWarn),
		},
	}
}

// WaitForMigrations is the default.
func WaitForMigrations() Options {
	return Options{
		MigrationCheckOptions: []migrations.CheckOption{
			migrations.WithCheckMode(migrations.CheckModeWait),
		},
	}
}

// ModeOptions maps a configured check mode name to Options.
func ModeOptions(mode string) (Options, error) {
	m, err := migrations.ParseCheckMode(mode)
	if err != nil {
		return Options{}, err
	}
	return Options{
		MigrationCheckOptions: []migrations.CheckOption{migrations.WithCheckMode(m)},
	}, nil
}
