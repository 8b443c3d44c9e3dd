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

	"github.com/spf13/cobra"

	"github.com/cardinalhq/catalogrunner/config"
	"github.com/cardinalhq/catalogrunner/internal/batchconsumer"
	"github.com/cardinalhq/catalogrunner/internal/catalogstore"
	"github.com/cardinalhq/catalogrunner/internal/healthcheck"
	"github.com/cardinalhq/catalogrunner/internal/idgen"
	"github.com/cardinalhq/catalogrunner/internal/notify"
	"github.com/cardinalhq/catalogrunner/internal/workqueue"
)

func init() {
	consumerCmd := &cobra.Command{
		Use:   "consumer",
		Short: "Turn queued rows into catalog records",
		Long:  `Receives row batches from queue.url, writes a record and a quantity per row, and publishes one notification per batch.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runService("catalog-consumer", func(ctx context.Context, cfg *config.Config, b *backends, health *healthcheck.Server) error {
				store, err := b.catalogStore(ctx)
				if err != nil {
					return err
				}
				addPingCheck(health, "catalogstore", store)

				pub, err := b.publisher(ctx)
				if err != nil {
					return err
				}
				addPingCheck(health, "notify", pub)
				c, err := newConsumer(cfg, store, pub)
				if err != nil {
					return err
				}

				rows, err := b.rowQueue(ctx)
				if err != nil {
					return err
				}
				monitorQueues(ctx, map[string]workqueue.Queue{"rows": rows})

				poller := &workqueue.Poller{
					Queue:       rows,
					Handler:     c.QueueHandler(),
					Name:        "batch-consumer",
					BatchSize:   cfg.Consumer.BatchSize,
					MaxInFlight: cfg.Consumer.MaxInFlightBatches,
					Heartbeat:   cfg.Queue.VisibilityTimeout / 2,
					Timeout:     cfg.Consumer.InvocationTimeout,
				}
				health.SetReady(true)
				return poller.Run(ctx)
			})
		},
	}
	rootCmd.AddCommand(consumerCmd)
}

func newConsumer(cfg *config.Config, store catalogstore.Store, pub notify.Publisher) (*batchconsumer.Consumer, error) {
	ids, err := idgen.ForFormat(cfg.Consumer.IDFormat)
	if err != nil {
		return nil, err
	}
	opts := []batchconsumer.Option{
		batchconsumer.WithIDGenerator(ids),
		batchconsumer.WithSubject(cfg.Notify.Subject),
		batchconsumer.WithMaxConcurrentWrites(cfg.Consumer.MaxConcurrentWrites),
	}
	if pub != nil {
		opts = append(opts, batchconsumer.WithPublisher(pub))
	}
	return batchconsumer.NewConsumer(store, store, opts...), nil
}
