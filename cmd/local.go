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
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/catalogrunner/config"
	"github.com/cardinalhq/catalogrunner/internal/catalog"
	"github.com/cardinalhq/catalogrunner/internal/catalogstore"
	"github.com/cardinalhq/catalogrunner/internal/notify"
	"github.com/cardinalhq/catalogrunner/internal/objstore"
	"github.com/cardinalhq/catalogrunner/internal/streamparser"
	"github.com/cardinalhq/catalogrunner/internal/workqueue"
)

func init() {
	var root string

	localCmd := &cobra.Command{
		Use:   "local <file>",
		Short: "Run all three stages against one file in a single process",
		Long: `Imports the file into a filesystem bucket, parses it into an in-memory queue and
drains the queue through the consumer into an in-memory store, then prints what was created.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if root == "" {
				dir, err := os.MkdirTemp("", "catalogrunner-local-")
				if err != nil {
					return err
				}
				defer os.RemoveAll(dir)
				root = dir
			}
			summary, err := runLocal(c.Context(), cfg, root, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	localCmd.Flags().StringVar(&root, "root", "", "Directory backing the local bucket (a temp dir when empty)")
	rootCmd.AddCommand(localCmd)
}

type localSummary struct {
	Key           string                      `json:"key"`
	ProcessedKey  string                      `json:"processedKey"`
	Rows          int                         `json:"rows"`
	Enqueued      int                         `json:"enqueued"`
	Skipped       int                         `json:"skipped"`
	Batches       int                         `json:"batches"`
	Abandoned     int                         `json:"abandonedMessages"`
	Items         []catalog.Item              `json:"items"`
	Notifications []catalog.BatchNotification `json:"notifications"`
}

// runLocal wires the pipeline from in-process parts: a filesystem bucket
// under root, a memory queue, a memory store and a recording publisher.
func runLocal(ctx context.Context, cfg *config.Config, root, path string) (localSummary, error) {
	bucket := cfg.Bucket.Name
	if bucket == "" {
		bucket = "catalog"
	}
	store, err := objstore.NewFileStore(bucket, root)
	if err != nil {
		return localSummary{}, err
	}

	key, err := importFile(ctx, cfg, store, path, "")
	if err != nil {
		return localSummary{}, err
	}

	// Failed batches stay invisible for the rest of the run.
	queue := workqueue.NewMemoryQueue(time.Hour, 0)
	parser := streamparser.NewParser(store, queue,
		streamparser.WithInboxPrefix(cfg.Bucket.InboxPrefix),
		streamparser.WithProcessedPrefix(cfg.Bucket.ProcessedPrefix),
		streamparser.WithBatchSize(cfg.Queue.SendBatchSize),
	)
	res, err := parser.Parse(ctx, key)
	if err != nil {
		return localSummary{}, err
	}

	catalogStore := catalogstore.NewMemoryStore()
	recorder := &notify.Recorder{}
	consumer, err := newConsumer(cfg, catalogStore, recorder)
	if err != nil {
		return localSummary{}, err
	}

	handle := consumer.QueueHandler()
	abandoned := 0
	for {
		deliveries, err := queue.Receive(ctx, cfg.Consumer.BatchSize)
		if err != nil {
			return localSummary{}, err
		}
		if len(deliveries) == 0 {
			break
		}
		acks := handle(ctx, deliveries)
		abandoned += len(deliveries) - len(acks)
		if err := queue.Ack(ctx, acks); err != nil {
			return localSummary{}, err
		}
	}

	items, err := collectItems(ctx, catalogStore)
	if err != nil {
		return localSummary{}, err
	}

	return localSummary{
		Key:           res.Key,
		ProcessedKey:  res.ProcessedKey,
		Rows:          res.Rows,
		Enqueued:      res.Enqueued,
		Skipped:       res.Skipped,
		Batches:       res.Batches,
		Abandoned:     abandoned,
		Items:         items,
		Notifications: recorder.Sent(),
	}, nil
}

func collectItems(ctx context.Context, s catalogstore.Store) ([]catalog.Item, error) {
	records, err := s.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]catalog.Item, 0, len(records))
	for _, r := range records {
		q, err := s.GetQuantity(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("quantity for %s: %w", r.ID, err)
		}
		items = append(items, catalog.Item{Record: r, Quantity: q})
	}
	return items, nil
}
