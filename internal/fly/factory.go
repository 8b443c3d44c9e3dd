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
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Factory builds producers and dialers that share broker, auth and TLS settings.
type Factory struct {
	config *Config
}

func NewFactory(cfg *Config) *Factory {
	return &Factory{config: cfg}
}

// security returns the SASL mechanism and TLS config implied by the factory
// config. Either may be nil.
func (f *Factory) security() (sasl.Mechanism, *tls.Config, error) {
	var mech sasl.Mechanism
	if f.config.SASLEnabled {
		m, err := f.createSASLMechanism()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		mech = m
	}
	var tlsCfg *tls.Config
	if f.config.TLSEnabled {
		tlsCfg = &tls.Config{InsecureSkipVerify: f.config.TLSSkipVerify}
	}
	return mech, tlsCfg, nil
}

// CreateProducer returns a producer writing to the configured brokers.
func (f *Factory) CreateProducer() (Producer, error) {
	if len(f.config.Brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	compression, err := parseCompression(f.config.ProducerCompression)
	if err != nil {
		return nil, err
	}
	acks, err := parseRequiredAcks(f.config.RequiredAcks)
	if err != nil {
		return nil, err
	}
	mech, tlsCfg, err := f.security()
	if err != nil {
		return nil, err
	}
	return NewProducer(ProducerConfig{
		Brokers:       f.config.Brokers,
		BatchSize:     f.config.ProducerBatchSize,
		BatchTimeout:  f.config.ProducerBatchTimeout,
		RequiredAcks:  acks,
		Compression:   compression,
		SASLMechanism: mech,
		TLSConfig:     tlsCfg,
	}), nil
}

// CreateDialer returns an authenticated dialer. A zero ConnectionTimeout
// means ten seconds.
func (f *Factory) CreateDialer() (*kafka.Dialer, error) {
	timeout := f.config.ConnectionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	mech, tlsCfg, err := f.security()
	if err != nil {
		return nil, err
	}
	return &kafka.Dialer{Timeout: timeout, SASLMechanism: mech, TLS: tlsCfg}, nil
}

// Ping succeeds when at least one configured broker accepts a connection.
func (f *Factory) Ping(ctx context.Context) error {
	if len(f.config.Brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	dialer, err := f.CreateDialer()
	if err != nil {
		return err
	}
	var lastErr error
	for _, broker := range f.config.Brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (f *Factory) createSASLMechanism() (sasl.Mechanism, error) {
	switch f.config.SASLMechanism {
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, f.config.SASLUsername, f.config.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, f.config.SASLUsername, f.config.SASLPassword)
	case "PLAIN":
		return plain.Mechanism{
			Username: f.config.SASLUsername,
			Password: f.config.SASLPassword,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", f.config.SASLMechanism)
	}
}

func parseCompression(s string) (kafka.Compression, error) {
	switch strings.ToLower(s) {
	case "", "none", "uncompressed":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unsupported compression: %s", s)
	}
}

func parseRequiredAcks(s string) (kafka.RequiredAcks, error) {
	switch strings.ToLower(s) {
	case "none", "0":
		return kafka.RequireNone, nil
	case "", "one", "1":
		return kafka.RequireOne, nil
	case "all", "-1":
		return kafka.RequireAll, nil
	default:
		return 0, fmt.Errorf("unsupported required acks: %s", s)
	}
}
