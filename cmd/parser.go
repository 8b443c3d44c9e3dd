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
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/catalogrunner/config"
	"github.com/cardinalhq/catalogrunner/internal/healthcheck"
	"github.com/cardinalhq/catalogrunner/internal/streamparser"
	"github.com/cardinalhq/catalogrunner/internal/workqueue"
)

func init() {
	parserCmd := &cobra.Command{
		Use:   "parser",
		Short: "Stream uploaded files into the row queue",
	}

	sqsCmd := &cobra.Command{
		Use:   "sqs",
		Short: "Consume object-created events from events.queue_url",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runService("catalog-parser", func(ctx context.Context, cfg *config.Config, b *backends, health *healthcheck.Server) error {
				h, err := newEventHandler(ctx, cfg, b)
				if err != nil {
					return err
				}
				h.Start()
				defer h.Stop()

				events, err := b.eventQueue(ctx)
				if err != nil {
					return err
				}
				monitorQueues(ctx, map[string]workqueue.Queue{"events": events})

				poller := &workqueue.Poller{
					Queue:       events,
					Handler:     h.QueueHandler(cfg.Events.MaxInFlight),
					Name:        "parser-events",
					BatchSize:   workqueue.MaxSendBatch,
					MaxInFlight: 1,
					Heartbeat:   cfg.Queue.VisibilityTimeout / 2,
					Timeout:     cfg.Parser.InvocationTimeout,
				}
				health.SetReady(true)
				return poller.Run(ctx)
			})
		},
	}

	var listenAddr string
	httpCmd := &cobra.Command{
		Use:   "http",
		Short: "Accept object-created events as HTTP POST bodies",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runService("catalog-parser", func(ctx context.Context, cfg *config.Config, b *backends, health *healthcheck.Server) error {
				h, err := newEventHandler(ctx, cfg, b)
				if err != nil {
					return err
				}
				h.Start()
				defer h.Stop()

				if listenAddr != "" {
					cfg.Events.ListenAddr = listenAddr
				}
				health.SetReady(true)
				handler := http.TimeoutHandler(h, cfg.Parser.InvocationTimeout, "parser invocation timed out")
				return serveHTTP(ctx, cfg.Events.ListenAddr, handler)
			})
		},
	}
	httpCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address, overriding events.listen_addr")

	var key string
	objectCmd := &cobra.Command{
		Use:   "object",
		Short: "Parse one uploaded object and exit",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			b := newBackends(cfg)
			defer func() { _ = b.Close() }()

			p, err := newParser(c.Context(), cfg, b)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context(), cfg.Parser.InvocationTimeout)
			defer cancel()
			resp := p.Handle(ctx, key)
			if err := json.NewEncoder(os.Stdout).Encode(resp); err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("parser returned status %d", resp.StatusCode)
			}
			return nil
		},
	}
	objectCmd.Flags().StringVar(&key, "key", "", "Object key under the inbox prefix")
	_ = objectCmd.MarkFlagRequired("key")

	parserCmd.AddCommand(sqsCmd, httpCmd, objectCmd)
	rootCmd.AddCommand(parserCmd)
}

func newParser(ctx context.Context, cfg *config.Config, b *backends) (*streamparser.Parser, error) {
	store, err := b.objectStore(ctx)
	if err != nil {
		return nil, err
	}
	queue, err := b.rowQueue(ctx)
	if err != nil {
		return nil, err
	}
	return streamparser.NewParser(store, queue,
		streamparser.WithInboxPrefix(cfg.Bucket.InboxPrefix),
		streamparser.WithProcessedPrefix(cfg.Bucket.ProcessedPrefix),
		streamparser.WithBatchSize(cfg.Queue.SendBatchSize),
	), nil
}

func newEventHandler(ctx context.Context, cfg *config.Config, b *backends) (*streamparser.EventHandler, error) {
	p, err := newParser(ctx, cfg, b)
	if err != nil {
		return nil, err
	}
	return streamparser.NewEventHandler(p, cfg.Events.DedupTTL), nil
}
