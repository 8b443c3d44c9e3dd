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
	"fmt"
	"strconv"

	"github.com/cardinalhq/catalogrunner/internal/catalog"
	"github.com/cardinalhq/catalogrunner/internal/fly"
)

// KafkaPublisher sends each notification as one message on a topic. The
// subject travels as a header and the body is the JSON message.
type KafkaPublisher struct {
	producer fly.Producer
	topic    string
}

var _ Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(producer fly.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, n catalog.BatchNotification) error {
	body, err := encodeBody(n)
	if err != nil {
		return err
	}
	msg := fly.Message{
		Value: body,
		Headers: map[string]string{
			"subject": n.Subject,
			"count":   strconv.Itoa(n.Count),
		},
	}
	if len(n.CreatedIDs) > 0 {
		msg.Key = []byte(n.CreatedIDs[0])
	}
	if err := p.producer.Send(ctx, p.topic, msg); err != nil {
		return fmt.Errorf("publish to kafka topic %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
