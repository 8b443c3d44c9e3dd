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

package workqueue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/cardinalhq/catalogrunner/internal/awsclient"
)

// SQSQueue implements Queue on an SQS queue URL.
type SQSQueue struct {
	client     *sqs.Client
	url        string
	visibility time.Duration
	wait       time.Duration
}

var _ Queue = (*SQSQueue)(nil)

type SQSOption func(*SQSQueue)

// WithVisibilityTimeout overrides the queue's own visibility timeout on receive.
func WithVisibilityTimeout(d time.Duration) SQSOption {
	return func(q *SQSQueue) { q.visibility = d }
}

// WithWaitTime sets the long-poll interval, capped at 20 seconds by SQS.
func WithWaitTime(d time.Duration) SQSOption {
	return func(q *SQSQueue) { q.wait = min(d, 20*time.Second) }
}

func NewSQSQueue(c *awsclient.SQSClient, queueURL string, opts ...SQSOption) *SQSQueue {
	q := &SQSQueue{
		client: c.Client,
		url:    queueURL,
		wait:   20 * time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *SQSQueue) URL() string { return q.url }

func (q *SQSQueue) SendBatch(ctx context.Context, entries []Entry) ([]EntryFailure, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	if len(entries) > MaxSendBatch {
		return nil, fmt.Errorf("%w: %d entries", ErrBatchTooLarge, len(entries))
	}

	in := &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(q.url),
		Entries:  make([]types.SendMessageBatchRequestEntry, 0, len(entries)),
	}
	for _, e := range entries {
		in.Entries = append(in.Entries, types.SendMessageBatchRequestEntry{
			Id:          aws.String(e.ID),
			MessageBody: aws.String(e.Body),
		})
	}

	out, err := q.client.SendMessageBatch(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("send message batch: %w", err)
	}

	var failed []EntryFailure
	for _, f := range out.Failed {
		failed = append(failed, EntryFailure{
			ID:     aws.ToString(f.Id),
			Code:   aws.ToString(f.Code),
			Reason: aws.ToString(f.Message),
		})
	}
	return failed, nil
}

func (q *SQSQueue) Receive(ctx context.Context, max int) ([]Delivery, error) {
	in := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: int32(min(max, MaxSendBatch)),
		WaitTimeSeconds:     int32(q.wait / time.Second),
	}
	if q.visibility > 0 {
		in.VisibilityTimeout = int32(q.visibility / time.Second)
	}

	out, err := q.client.ReceiveMessage(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}

	deliveries := make([]Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		if m.Body == nil || m.ReceiptHandle == nil {
			continue
		}
		deliveries = append(deliveries, Delivery{
			ID:            aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
		})
	}
	return deliveries, nil
}

func (q *SQSQueue) Ack(ctx context.Context, deliveries []Delivery) error {
	for start := 0; start < len(deliveries); start += MaxSendBatch {
		chunk := deliveries[start:min(start+MaxSendBatch, len(deliveries))]
		in := &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(q.url),
			Entries:  make([]types.DeleteMessageBatchRequestEntry, 0, len(chunk)),
		}
		for i, d := range chunk {
			in.Entries = append(in.Entries, types.DeleteMessageBatchRequestEntry{
				Id:            aws.String(fmt.Sprintf("%d", i)),
				ReceiptHandle: aws.String(d.ReceiptHandle),
			})
		}
		out, err := q.client.DeleteMessageBatch(ctx, in)
		if err != nil {
			return fmt.Errorf("delete message batch: %w", err)
		}
		if len(out.Failed) > 0 {
			f := out.Failed[0]
			return fmt.Errorf("delete message batch: %d of %d entries failed, first: %s %s",
				len(out.Failed), len(chunk), aws.ToString(f.Code), aws.ToString(f.Message))
		}
	}
	return nil
}

// Extend resets the visibility timeout of in-flight messages.
func (q *SQSQueue) Extend(ctx context.Context, deliveries []Delivery, visibility time.Duration) error {
	for start := 0; start < len(deliveries); start += MaxSendBatch {
		chunk := deliveries[start:min(start+MaxSendBatch, len(deliveries))]
		in := &sqs.ChangeMessageVisibilityBatchInput{
			QueueUrl: aws.String(q.url),
			Entries:  make([]types.ChangeMessageVisibilityBatchRequestEntry, 0, len(chunk)),
		}
		for i, d := range chunk {
			in.Entries = append(in.Entries, types.ChangeMessageVisibilityBatchRequestEntry{
				Id:                aws.String(fmt.Sprintf("%d", i)),
				ReceiptHandle:     aws.String(d.ReceiptHandle),
				VisibilityTimeout: int32(visibility / time.Second),
			})
		}
		out, err := q.client.ChangeMessageVisibilityBatch(ctx, in)
		if err != nil {
			return fmt.Errorf("change message visibility: %w", err)
		}
		if len(out.Failed) > 0 {
			return fmt.Errorf("change message visibility: %d of %d entries failed", len(out.Failed), len(chunk))
		}
	}
	return nil
}

// Depth returns the approximate number of visible messages.
func (q *SQSQueue) Depth(ctx context.Context) (int64, error) {
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(q.url),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, fmt.Errorf("get attributes %s: %w", q.url, err)
	}
	v := out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)]
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse queue depth %q: %w", v, err)
	}
	return n, nil
}
