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
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
)

// Producer writes messages to Kafka topics.
type Producer interface {
	Send(ctx context.Context, topic string, message Message) error

	// BatchSend writes all messages in one call.
	BatchSend(ctx context.Context, topic string, messages []Message) error

	Close() error
}

// ProducerConfig contains configuration for the Kafka producer
type ProducerConfig struct {
	Brokers      []string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks kafka.RequiredAcks
	Compression  kafka.Compression

	SASLMechanism sasl.Mechanism
	TLSConfig     *tls.Config
}

// kafkaProducer lazily creates one writer per topic.
type kafkaProducer struct {
	cfg ProducerConfig

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewProducer(config ProducerConfig) Producer {
	return &kafkaProducer{cfg: config, writers: map[string]*kafka.Writer{}}
}

func (p *kafkaProducer) newWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(p.cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    p.cfg.BatchSize,
		BatchTimeout: p.cfg.BatchTimeout,
		RequiredAcks: p.cfg.RequiredAcks,
		Compression:  p.cfg.Compression,
		Transport:    &kafka.Transport{SASL: p.cfg.SASLMechanism, TLS: p.cfg.TLSConfig},
	}
}

func (p *kafkaProducer) writerFor(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.writers[topic]
	if !ok {
		w = p.newWriter(topic)
		p.writers[topic] = w
	}
	return w
}

func (p *kafkaProducer) Send(ctx context.Context, topic string, message Message) error {
	return p.BatchSend(ctx, topic, []Message{message})
}

func (p *kafkaProducer) BatchSend(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	out := make([]kafka.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ToKafkaMessage())
	}
	return p.writerFor(topic).WriteMessages(ctx, out...)
}

// Close closes every writer and forgets them; the producer may be reused.
func (p *kafkaProducer) Close() error {
	p.mu.Lock()
	writers := p.writers
	p.writers = map[string]*kafka.Writer{}
	p.mu.Unlock()

	var errs *multierror.Error
	for topic, w := range writers {
		if err := w.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close writer for %s: %w", topic, err))
		}
	}
	return errs.ErrorOrNil()
}
