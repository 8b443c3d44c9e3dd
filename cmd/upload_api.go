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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/catalogrunner/config"
	"github.com/cardinalhq/catalogrunner/internal/healthcheck"
	"github.com/cardinalhq/catalogrunner/internal/uploadauth"
)

func init() {
	var listenAddr string

	uploadAPICmd := &cobra.Command{
		Use:   "upload-api",
		Short: "Serve the upload authorizer",
		Long:  `Serves GET /import?fileName=<name>, answering with a short-lived signed URL for writing the file into the bucket inbox.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runService("catalog-upload-api", func(ctx context.Context, cfg *config.Config, b *backends, health *healthcheck.Server) error {
				a, err := newAuthorizer(ctx, cfg, b)
				if err != nil {
					return err
				}
				if listenAddr != "" {
					cfg.Upload.ListenAddr = listenAddr
				}
				health.SetReady(true)
				return serveHTTP(ctx, cfg.Upload.ListenAddr, a.Handler())
			})
		},
	}
	uploadAPICmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address, overriding upload.listen_addr")

	var fileName string
	authorizeCmd := &cobra.Command{
		Use:   "authorize",
		Short: "Issue one upload URL and print the response",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			b := newBackends(cfg)
			defer func() { _ = b.Close() }()

			a, err := newAuthorizer(c.Context(), cfg, b)
			if err != nil {
				return err
			}
			resp := a.Invoke(c.Context(), uploadauth.Request{FileName: fileName})
			if err := json.NewEncoder(os.Stdout).Encode(resp); err != nil {
				return err
			}
			if resp.StatusCode != 200 {
				return fmt.Errorf("authorize returned status %d", resp.StatusCode)
			}
			return nil
		},
	}
	authorizeCmd.Flags().StringVar(&fileName, "file-name", "", "File name to authorize")

	uploadAPICmd.AddCommand(authorizeCmd)
	rootCmd.AddCommand(uploadAPICmd)
}

func newAuthorizer(ctx context.Context, cfg *config.Config, b *backends) (*uploadauth.Authorizer, error) {
	store, err := b.objectStore(ctx)
	if err != nil {
		return nil, err
	}
	return uploadauth.NewAuthorizer(store,
		uploadauth.WithInboxPrefix(cfg.Bucket.InboxPrefix),
		uploadauth.WithContentType(cfg.Upload.ContentType),
		uploadauth.WithExpiry(cfg.Upload.URLExpiry),
	), nil
}
