//go:build kafkatest

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

package notify

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/orlangure/gnomock"
	kafkapreset "github.com/orlangure/gnomock/preset/kafka"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/catalogrunner/internal/catalog"
	"github.com/cardinalhq/catalogrunner/internal/fly"
)

func TestKafkaPublisher_Gnomock(t *testing.T) {
	container, err := gnomock.Start(kafkapreset.Preset())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gnomock.Stop(container) })

	broker := container.Address(kafkapreset.BrokerPort)
	const topic = "catalog.batches"

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	err = conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	if err != nil && !strings.Contains(err.Error(), "Topic already exists") {
		require.NoError(t, err)
	}
	_ = conn.Close()

	cfg := fly.DefaultConfig()
	cfg.Brokers = []string{broker}
	producer, err := fly.NewFactory(&cfg).CreateProducer()
	require.NoError(t, err)

	p := NewKafkaPublisher(producer, topic)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, p.Publish(ctx, catalog.NewBatchNotification("", []string{"p1", "p2"})))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)

	var body catalog.NotificationBody
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, []string{"p1", "p2"}, body.ProductIDs)
	assert.Equal(t, 2, body.Count)
}
