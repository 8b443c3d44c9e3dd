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

package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cardinalhq/catalogrunner/internal/batchconsumer"
	"github.com/cardinalhq/catalogrunner/internal/catalog"
	"github.com/cardinalhq/catalogrunner/internal/catalogstore"
	"github.com/cardinalhq/catalogrunner/internal/fly"
	"github.com/cardinalhq/catalogrunner/internal/idgen"
	"github.com/cardinalhq/catalogrunner/internal/notify"
	"github.com/cardinalhq/catalogrunner/internal/streamparser"
	"github.com/cardinalhq/catalogrunner/internal/uploadauth"
)

// Config aggregates configuration for every command.
type Config struct {
	Bucket   BucketConfig   `mapstructure:"bucket"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Events   EventsConfig   `mapstructure:"events"`
	Parser   ParserConfig   `mapstructure:"parser"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	Stores   StoresConfig   `mapstructure:"stores"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Kafka    fly.Config     `mapstructure:"kafka"`
}

// BucketConfig names the object store bucket that holds uploads. An empty
// Endpoint means AWS S3; LocalRoot switches to a filesystem store.
type BucketConfig struct {
	Name            string `mapstructure:"name"`
	InboxPrefix     string `mapstructure:"inbox_prefix"`
	ProcessedPrefix string `mapstructure:"processed_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	PathStyle       bool   `mapstructure:"path_style"`
	RoleARN         string `mapstructure:"role_arn"`
	LocalRoot       string `mapstructure:"local_root"`
}

type UploadConfig struct {
	ListenAddr  string        `mapstructure:"listen_addr"`
	URLExpiry   time.Duration `mapstructure:"url_expiry"`
	ContentType string        `mapstructure:"content_type"`
}

// QueueConfig is the row queue between the parser and the consumer.
type QueueConfig struct {
	URL               string        `mapstructure:"url"`
	Region            string        `mapstructure:"region"`
	Endpoint          string        `mapstructure:"endpoint"`
	RoleARN           string        `mapstructure:"role_arn"`
	SendBatchSize     int           `mapstructure:"send_batch_size"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	WaitTime          time.Duration `mapstructure:"wait_time"`
}

// EventsConfig is the object-created notification source for the parser.
type EventsConfig struct {
	QueueURL    string        `mapstructure:"queue_url"`
	DedupTTL    time.Duration `mapstructure:"dedup_ttl"`
	ListenAddr  string        `mapstructure:"listen_addr"`
	MaxInFlight int           `mapstructure:"max_in_flight"`
}

type ParserConfig struct {
	InvocationTimeout time.Duration `mapstructure:"invocation_timeout"`
}

type ConsumerConfig struct {
	BatchSize int `mapstructure:"batch_size"`
	// MaxConcurrentWrites caps in-flight store writes per batch; 0 issues
	// every write of the batch at once.
	MaxConcurrentWrites int           `mapstructure:"max_concurrent_writes"`
	InvocationTimeout   time.Duration `mapstructure:"invocation_timeout"`
	MaxInFlightBatches  int           `mapstructure:"max_in_flight_batches"`
	IDFormat            string        `mapstructure:"id_format"`
}

// StoresConfig selects the catalog store backend. PostgresURL is optional;
// when empty the CATALOGDB_* environment is used.
type StoresConfig struct {
	Backend            string `mapstructure:"backend"`
	RecordTable        string `mapstructure:"record_table"`
	QuantityTable      string `mapstructure:"quantity_table"`
	Region             string `mapstructure:"region"`
	Endpoint           string `mapstructure:"endpoint"`
	RoleARN            string `mapstructure:"role_arn"`
	PostgresURL        string `mapstructure:"postgres_url"`
	MigrationCheckMode string `mapstructure:"migration_check_mode"`
}

type NotifyConfig struct {
	Backend    string `mapstructure:"backend"`
	TopicARN   string `mapstructure:"topic_arn"`
	Region     string `mapstructure:"region"`
	Endpoint   string `mapstructure:"endpoint"`
	KafkaTopic string `mapstructure:"kafka_topic"`
	Subject    string `mapstructure:"subject"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Bucket: BucketConfig{
			InboxPrefix:     streamparser.DefaultInboxPrefix,
			ProcessedPrefix: streamparser.DefaultProcessedPrefix,
		},
		Upload: UploadConfig{
			ListenAddr:  ":8080",
			URLExpiry:   uploadauth.DefaultExpiry,
			ContentType: uploadauth.DefaultContentType,
		},
		Queue: QueueConfig{
			SendBatchSize:     streamparser.DefaultBatchSize,
			VisibilityTimeout: 30 * time.Second,
			WaitTime:          20 * time.Second,
		},
		Events: EventsConfig{
			DedupTTL:    streamparser.DefaultDedupTTL,
			ListenAddr:  ":8081",
			MaxInFlight: 4,
		},
		Parser: ParserConfig{
			InvocationTimeout: 15 * time.Minute,
		},
		Consumer: ConsumerConfig{
			BatchSize:           batchconsumer.DefaultBatchSize,
			MaxConcurrentWrites: 0,
			InvocationTimeout:   30 * time.Second,
			MaxInFlightBatches:  4,
			IDFormat:            idgen.FormatUUID,
		},
		Stores: StoresConfig{
			Backend:            catalogstore.BackendDynamoDB,
			RecordTable:        "products",
			QuantityTable:      "stocks",
			MigrationCheckMode: "wait",
		},
		Notify: NotifyConfig{
			Backend: notify.BackendSNS,
			Subject: catalog.NotificationSubject,
		},
		Kafka: fly.DefaultConfig(),
	}
}

// Load reads configuration from an optional config.yaml and environment
// variables. Environment variables use the prefix "CATALOGRUNNER" and the
// dot character in keys is replaced by an underscore. For example,
// "bucket.name" becomes "CATALOGRUNNER_BUCKET_NAME".
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("CATALOGRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if b := v.GetString("kafka.brokers"); b != "" {
		cfg.Kafka.Brokers = strings.Split(b, ",")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no command could run with.
func (c *Config) Validate() error {
	switch c.Stores.Backend {
	case catalogstore.BackendDynamoDB, catalogstore.BackendPostgres, catalogstore.BackendMemory:
	default:
		return fmt.Errorf("stores.backend: unknown backend %q", c.Stores.Backend)
	}
	switch c.Notify.Backend {
	case notify.BackendSNS, notify.BackendKafka, notify.BackendLog, notify.BackendNone:
	default:
		return fmt.Errorf("notify.backend: unknown backend %q", c.Notify.Backend)
	}
	if c.Queue.SendBatchSize < 1 || c.Queue.SendBatchSize > 10 {
		return fmt.Errorf("queue.send_batch_size must be between 1 and 10, got %d", c.Queue.SendBatchSize)
	}
	if c.Consumer.BatchSize < 1 || c.Consumer.BatchSize > 10 {
		return fmt.Errorf("consumer.batch_size must be between 1 and 10, got %d", c.Consumer.BatchSize)
	}
	if c.Consumer.MaxConcurrentWrites < 0 {
		return fmt.Errorf("consumer.max_concurrent_writes must not be negative, got %d", c.Consumer.MaxConcurrentWrites)
	}
	if _, err := idgen.ForFormat(c.Consumer.IDFormat); err != nil {
		return fmt.Errorf("consumer.id_format: %w", err)
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
