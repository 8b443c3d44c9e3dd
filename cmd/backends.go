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
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cardinalhq/catalogrunner/config"
	"github.com/cardinalhq/catalogrunner/internal/awsclient"
	"github.com/cardinalhq/catalogrunner/internal/catalogstore"
	"github.com/cardinalhq/catalogrunner/internal/dbopen"
	"github.com/cardinalhq/catalogrunner/internal/fly"
	"github.com/cardinalhq/catalogrunner/internal/notify"
	"github.com/cardinalhq/catalogrunner/internal/objstore"
	"github.com/cardinalhq/catalogrunner/internal/workqueue"
)

// backends builds the external collaborators named by the configuration.
// Every constructed client that holds resources is closed by Close.
type backends struct {
	cfg *config.Config

	mu      sync.Mutex
	aws     *awsclient.Manager
	closers []func() error
}

func newBackends(cfg *config.Config) *backends {
	return &backends{cfg: cfg}
}

func (b *backends) awsManager(ctx context.Context) (*awsclient.Manager, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.aws != nil {
		return b.aws, nil
	}
	m, err := awsclient.NewManager(ctx, awsclient.WithDefaultRegion(b.cfg.Bucket.Region))
	if err != nil {
		return nil, err
	}
	b.aws = m
	return m, nil
}

func (b *backends) onClose(f func() error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closers = append(b.closers, f)
}

// objectStore returns the upload bucket. A configured local root selects
// a filesystem store instead of S3.
func (b *backends) objectStore(ctx context.Context) (objstore.Store, error) {
	bc := b.cfg.Bucket
	if bc.Name == "" {
		return nil, errors.New("bucket.name is required")
	}
	if bc.LocalRoot != "" {
		return objstore.NewFileStore(bc.Name, bc.LocalRoot)
	}
	m, err := b.awsManager(ctx)
	if err != nil {
		return nil, err
	}
	c, err := m.GetS3(ctx, awsclient.Target{
		Region:    bc.Region,
		RoleARN:   bc.RoleARN,
		Endpoint:  bc.Endpoint,
		PathStyle: bc.PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client for bucket %s: %w", bc.Name, err)
	}
	return objstore.NewS3Store(bc.Name, c), nil
}

func (b *backends) sqsQueue(ctx context.Context, url string) (*workqueue.SQSQueue, error) {
	qc := b.cfg.Queue
	m, err := b.awsManager(ctx)
	if err != nil {
		return nil, err
	}
	c, err := m.GetSQS(ctx, awsclient.Target{
		Region:   qc.Region,
		RoleARN:  qc.RoleARN,
		Endpoint: qc.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("sqs client: %w", err)
	}
	return workqueue.NewSQSQueue(c, url,
		workqueue.WithVisibilityTimeout(qc.VisibilityTimeout),
		workqueue.WithWaitTime(qc.WaitTime),
	), nil
}

// rowQueue is the queue between the parser and the consumer.
func (b *backends) rowQueue(ctx context.Context) (workqueue.Queue, error) {
	if b.cfg.Queue.URL == "" {
		return nil, errors.New("queue.url is required")
	}
	return b.sqsQueue(ctx, b.cfg.Queue.URL)
}

// eventQueue delivers the bucket's object-created notifications.
func (b *backends) eventQueue(ctx context.Context) (workqueue.Queue, error) {
	if b.cfg.Events.QueueURL == "" {
		return nil, errors.New("events.queue_url is required")
	}
	return b.sqsQueue(ctx, b.cfg.Events.QueueURL)
}

func (b *backends) catalogStore(ctx context.Context) (catalogstore.Store, error) {
	sc := b.cfg.Stores
	var (
		store catalogstore.Store
		err   error
	)
	switch sc.Backend {
	case catalogstore.BackendMemory:
		store = catalogstore.NewMemoryStore()
	case catalogstore.BackendPostgres:
		opts, oerr := dbopen.ModeOptions(sc.MigrationCheckMode)
		if oerr != nil {
			return nil, oerr
		}
		store, err = dbopen.CatalogStore(ctx, sc.PostgresURL, opts)
	case catalogstore.BackendDynamoDB:
		store, err = b.dynamoStore(ctx)
	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
	if err != nil {
		return nil, err
	}
	b.onClose(store.Close)
	slog.Info("Catalog store ready", slog.String("backend", sc.Backend))
	return store, nil
}

func (b *backends) dynamoStore(ctx context.Context) (catalogstore.Store, error) {
	sc := b.cfg.Stores
	m, err := b.awsManager(ctx)
	if err != nil {
		return nil, err
	}
	c, err := m.GetDynamoDB(ctx, awsclient.Target{
		Region:   sc.Region,
		RoleARN:  sc.RoleARN,
		Endpoint: sc.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb client: %w", err)
	}
	return catalogstore.NewDynamoStore(c, sc.RecordTable, sc.QuantityTable), nil
}

// publisher returns the notification channel, or nil when notifications
// are disabled.
func (b *backends) publisher(ctx context.Context) (notify.Publisher, error) {
	nc := b.cfg.Notify
	switch nc.Backend {
	case notify.BackendNone:
		return nil, nil
	case notify.BackendLog:
		return notify.LogPublisher{}, nil
	case notify.BackendSNS:
		if nc.TopicARN == "" {
			return nil, errors.New("notify.topic_arn is required for the sns backend")
		}
		m, err := b.awsManager(ctx)
		if err != nil {
			return nil, err
		}
		c, err := m.GetSNS(ctx, awsclient.Target{Region: nc.Region, Endpoint: nc.Endpoint})
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		return notify.NewSNSPublisher(c, nc.TopicARN), nil
	case notify.BackendKafka:
		if nc.KafkaTopic == "" {
			return nil, errors.New("notify.kafka_topic is required for the kafka backend")
		}
		factory := fly.NewFactory(&b.cfg.Kafka)
		producer, err := factory.CreateProducer()
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		p := notify.NewKafkaPublisher(producer, nc.KafkaTopic)
		b.onClose(p.Close)
		return kafkaPublisher{KafkaPublisher: p, factory: factory}, nil
	default:
		return nil, fmt.Errorf("unknown notify backend %q", nc.Backend)
	}
}

func (b *backends) Close() error {
	b.mu.Lock()
	closers := b.closers
	b.closers = nil
	b.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// kafkaPublisher exposes the broker ping of its factory as a readiness check.
type kafkaPublisher struct {
	*notify.KafkaPublisher
	factory *fly.Factory
}

func (k kafkaPublisher) Ping(ctx context.Context) error {
	return k.factory.Ping(ctx)
}
