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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/cardinalhq/catalogrunner/internal/awsclient"
	"github.com/cardinalhq/catalogrunner/internal/catalog"
)

// SNSAPI is the part of the SNS client the publisher calls.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSPublisher struct {
	api      SNSAPI
	topicARN string
}

var _ Publisher = (*SNSPublisher)(nil)

func NewSNSPublisher(c *awsclient.SNSClient, topicARN string) *SNSPublisher {
	return &SNSPublisher{api: c.Client, topicARN: topicARN}
}

func (p *SNSPublisher) Publish(ctx context.Context, n catalog.BatchNotification) error {
	body, err := encodeBody(n)
	if err != nil {
		return err
	}
	_, err = p.api.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(n.Subject),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.topicARN, err)
	}
	return nil
}
