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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "inbox/", cfg.Bucket.InboxPrefix)
	assert.Equal(t, "processed/", cfg.Bucket.ProcessedPrefix)
	assert.Equal(t, 60*time.Second, cfg.Upload.URLExpiry)
	assert.Equal(t, "text/csv", cfg.Upload.ContentType)
	assert.Equal(t, 10, cfg.Queue.SendBatchSize)
	assert.Equal(t, 5, cfg.Consumer.BatchSize)
	assert.Zero(t, cfg.Consumer.MaxConcurrentWrites, "all writes of a batch run concurrently by default")
	assert.Equal(t, "dynamodb", cfg.Stores.Backend)
	assert.Equal(t, "sns", cfg.Notify.Backend)
	assert.Equal(t, "Catalog batch processed", cfg.Notify.Subject)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CATALOGRUNNER_BUCKET_NAME", "uploads")
	t.Setenv("CATALOGRUNNER_QUEUE_URL", "https://sqs.us-east-2.amazonaws.com/123/catalog")
	t.Setenv("CATALOGRUNNER_STORES_BACKEND", "postgres")
	t.Setenv("CATALOGRUNNER_CONSUMER_BATCH_SIZE", "7")
	t.Setenv("CATALOGRUNNER_UPLOAD_URL_EXPIRY", "5m")
	t.Setenv("CATALOGRUNNER_NOTIFY_BACKEND", "kafka")
	t.Setenv("CATALOGRUNNER_KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("CATALOGRUNNER_KAFKA_SASL_ENABLED", "true")
	t.Setenv("CATALOGRUNNER_KAFKA_SASL_USERNAME", "alice")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "uploads", cfg.Bucket.Name)
	assert.Equal(t, "https://sqs.us-east-2.amazonaws.com/123/catalog", cfg.Queue.URL)
	assert.Equal(t, "postgres", cfg.Stores.Backend)
	assert.Equal(t, 7, cfg.Consumer.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Upload.URLExpiry)
	assert.Equal(t, "kafka", cfg.Notify.Backend)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.SASLEnabled)
	assert.Equal(t, "alice", cfg.Kafka.SASLUsername)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := "bucket:\n  name: from-file\nstores:\n  backend: memory\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Bucket.Name)
	assert.Equal(t, "memory", cfg.Stores.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad store", func(c *Config) { c.Stores.Backend = "mysql" }, "stores.backend"},
		{"bad notify", func(c *Config) { c.Notify.Backend = "email" }, "notify.backend"},
		{"send batch too large", func(c *Config) { c.Queue.SendBatchSize = 11 }, "queue.send_batch_size"},
		{"consumer batch zero", func(c *Config) { c.Consumer.BatchSize = 0 }, "consumer.batch_size"},
		{"negative write limit", func(c *Config) { c.Consumer.MaxConcurrentWrites = -1 }, "consumer.max_concurrent_writes"},
		{"bad id format", func(c *Config) { c.Consumer.IDFormat = "serial" }, "consumer.id_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
