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

package fly

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, "snappy", cfg.ProducerCompression)
	assert.Equal(t, "one", cfg.RequiredAcks)
	assert.Equal(t, 10*time.Second, cfg.ConnectionTimeout)
}

func TestFactory_CreateProducer(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "defaults",
			config: DefaultConfig(),
		},
		{
			name: "SASL SCRAM-SHA-512 with TLS",
			config: Config{
				Brokers:       []string{"localhost:9092"},
				SASLEnabled:   true,
				SASLMechanism: "SCRAM-SHA-512",
				SASLUsername:  "user",
				SASLPassword:  "pass",
				TLSEnabled:    true,
			},
		},
		{
			name: "SASL PLAIN",
			config: Config{
				Brokers:       []string{"localhost:9092"},
				SASLEnabled:   true,
				SASLMechanism: "PLAIN",
				SASLUsername:  "user",
				SASLPassword:  "pass",
			},
		},
		{
			name: "unsupported SASL mechanism",
			config: Config{
				Brokers:       []string{"localhost:9092"},
				SASLEnabled:   true,
				SASLMechanism: "KERBEROS",
			},
			wantErr: true,
		},
		{
			name: "unsupported compression",
			config: Config{
				Brokers:             []string{"localhost:9092"},
				ProducerCompression: "brotli",
			},
			wantErr: true,
		},
		{
			name: "unsupported acks",
			config: Config{
				Brokers:      []string{"localhost:9092"},
				RequiredAcks: "most",
			},
			wantErr: true,
		},
		{
			name:    "no brokers",
			config:  Config{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config
			producer, err := NewFactory(&cfg).CreateProducer()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, producer)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, producer)
			assert.NoError(t, producer.Close())
		})
	}
}

func TestFactory_CreateDialer(t *testing.T) {
	cfg := Config{Brokers: []string{"localhost:9092"}, TLSEnabled: true, TLSSkipVerify: true}
	dialer, err := NewFactory(&cfg).CreateDialer()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, dialer.Timeout)
	require.NotNil(t, dialer.TLS)
	assert.True(t, dialer.TLS.InsecureSkipVerify)
}

func TestFactory_Ping(t *testing.T) {
	err := NewFactory(&Config{}).Ping(context.Background())
	require.Error(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := Config{Brokers: []string{addr}, ConnectionTimeout: time.Second}
	err = NewFactory(&cfg).Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no kafka broker reachable")
}

func TestParseRequiredAcks(t *testing.T) {
	for in, want := range map[string]kafka.RequiredAcks{
		"":     kafka.RequireOne,
		"none": kafka.RequireNone,
		"ALL":  kafka.RequireAll,
		"1":    kafka.RequireOne,
	} {
		got, err := parseRequiredAcks(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestMessage_ToKafkaMessage(t *testing.T) {
	m := Message{
		Key:     []byte("k"),
		Value:   []byte(`{"count":1}`),
		Headers: map[string]string{"subject": "Catalog batch processed"},
	}
	km := m.ToKafkaMessage()
	assert.Equal(t, []byte("k"), km.Key)
	assert.Equal(t, []byte(`{"count":1}`), km.Value)
	require.Len(t, km.Headers, 1)
	assert.Equal(t, "subject", km.Headers[0].Key)
	assert.Equal(t, []byte("Catalog batch processed"), km.Headers[0].Value)
}
