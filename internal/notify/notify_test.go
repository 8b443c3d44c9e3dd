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
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/catalogrunner/internal/catalog"
	"github.com/cardinalhq/catalogrunner/internal/fly"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestSNSPublisher(t *testing.T) {
	api := &fakeSNS{}
	p := &SNSPublisher{api: api, topicARN: "arn:aws:sns:us-east-1:123456789012:catalog"}

	n := catalog.NewBatchNotification("", []string{"a", "b"})
	require.NoError(t, p.Publish(context.Background(), n))

	require.Len(t, api.inputs, 1)
	in := api.inputs[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:catalog", aws.ToString(in.TopicArn))
	assert.Equal(t, "Catalog batch processed", aws.ToString(in.Subject))

	var body catalog.NotificationBody
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.Message)), &body))
	assert.Equal(t, "New products created", body.Message)
	assert.Equal(t, []string{"a", "b"}, body.ProductIDs)
	assert.Equal(t, 2, body.Count)
}

func TestSNSPublisher_Error(t *testing.T) {
	p := &SNSPublisher{api: &fakeSNS{err: errors.New("endpoint down")}, topicARN: "arn:topic"}
	err := p.Publish(context.Background(), catalog.NewBatchNotification("", []string{"a"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint down")
}

type fakeProducer struct {
	topic string
	msgs  []fly.Message
}

func (f *fakeProducer) Send(_ context.Context, topic string, m fly.Message) error {
	f.topic = topic
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeProducer) BatchSend(ctx context.Context, topic string, ms []fly.Message) error {
	for _, m := range ms {
		_ = f.Send(ctx, topic, m)
	}
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	prod := &fakeProducer{}
	p := NewKafkaPublisher(prod, "catalog.batches")

	require.NoError(t, p.Publish(context.Background(), catalog.NewBatchNotification("custom", []string{"x1"})))
	assert.Equal(t, "catalog.batches", prod.topic)
	require.Len(t, prod.msgs, 1)
	m := prod.msgs[0]
	assert.Equal(t, []byte("x1"), m.Key)
	assert.Equal(t, "custom", m.Headers["subject"])
	assert.Equal(t, "1", m.Headers["count"])
	assert.JSONEq(t, `{"message":"New products created","productIds":["x1"],"count":1}`, string(m.Value))
	assert.NoError(t, p.Close())
}

func TestRecorder(t *testing.T) {
	r := &Recorder{Err: errors.New("down")}
	err := r.Publish(context.Background(), catalog.NewBatchNotification("", []string{"a"}))
	assert.Error(t, err)
	require.Len(t, r.Sent(), 1)
	assert.Equal(t, 1, r.Sent()[0].Count)
}

func TestLogAndNopPublishers(t *testing.T) {
	n := catalog.NewBatchNotification("", nil)
	assert.NoError(t, LogPublisher{}.Publish(context.Background(), n))
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), n))
}
