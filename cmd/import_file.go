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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/catalogrunner/config"
	"github.com/cardinalhq/catalogrunner/internal/objstore"
	"github.com/cardinalhq/catalogrunner/internal/uploadauth"
)

func init() {
	var name string

	importFileCmd := &cobra.Command{
		Use:   "import-file <path>",
		Short: "Upload a local CSV file straight into the bucket inbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			b := newBackends(cfg)
			defer func() { _ = b.Close() }()

			store, err := b.objectStore(c.Context())
			if err != nil {
				return err
			}
			key, err := importFile(c.Context(), cfg, store, args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), key)
			return nil
		},
	}
	importFileCmd.Flags().StringVar(&name, "name", "", "File name under the inbox prefix (defaults to the base name of path)")
	rootCmd.AddCommand(importFileCmd)
}

// importFile writes the file at path to the inbox key for name and returns
// that key.
func importFile(ctx context.Context, cfg *config.Config, store objstore.Store, path, name string) (string, error) {
	if name == "" {
		name = filepath.Base(path)
	}
	a := uploadauth.NewAuthorizer(store,
		uploadauth.WithInboxPrefix(cfg.Bucket.InboxPrefix),
		uploadauth.WithContentType(cfg.Upload.ContentType),
	)
	key, err := a.ObjectKey(name)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := store.Put(ctx, key, cfg.Upload.ContentType, f); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	slog.Info("Imported file", slog.String("path", path), slog.String("bucket", store.Bucket()), slog.String("key", key))
	return key, nil
}
