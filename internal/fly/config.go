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
	"time"
)

// Config holds the Kafka connection and producer settings.
type Config struct {
	Brokers []string `mapstructure:"brokers"`

	// SASL authentication
	SASLEnabled   bool   `mapstructure:"sasl_enabled"`
	SASLMechanism string `mapstructure:"sasl_mechanism"` // "SCRAM-SHA-256", "SCRAM-SHA-512" or "PLAIN"
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`

	TLSEnabled    bool `mapstructure:"tls_enabled"`
	TLSSkipVerify bool `mapstructure:"tls_skip_verify"`

	ProducerBatchSize    int           `mapstructure:"producer_batch_size"`
	ProducerBatchTimeout time.Duration `mapstructure:"producer_batch_timeout"`
	ProducerCompression  string        `mapstructure:"producer_compression"`
	RequiredAcks         string        `mapstructure:"required_acks"` // "none", "one" or "all"

	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Brokers: []string{"localhost:9092"},

		SASLMechanism: "SCRAM-SHA-256",

		ProducerBatchSize:    1,
		ProducerBatchTimeout: 10 * time.Millisecond,
		ProducerCompression:  "snappy",
		RequiredAcks:         "one",

		ConnectionTimeout: 10 * time.Second,
	}
}
