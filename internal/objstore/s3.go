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

package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/catalogrunner/internal/awsclient"
)

var (
	presignCount metric.Int64Counter
	openErrors   metric.Int64Counter
	readBytes    metric.Int64Counter
	uploadBytes  metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/catalogrunner/internal/objstore")

	var err error
	presignCount, err = meter.Int64Counter(
		"catalogrunner.objstore.presign.count",
		metric.WithDescription("Number of write capabilities issued"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create presign.count counter: %w", err))
	}

	openErrors, err = meter.Int64Counter(
		"catalogrunner.objstore.open.errors",
		metric.WithDescription("Number of failed object reads"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create open.errors counter: %w", err))
	}

	readBytes, err = meter.Int64Counter(
		"catalogrunner.objstore.read.bytes",
		metric.WithDescription("Bytes streamed from the object store"),
		metric.WithUnit("By"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create read.bytes counter: %w", err))
	}

	uploadBytes, err = meter.Int64Counter(
		"catalogrunner.objstore.upload.bytes",
		metric.WithDescription("Bytes written to the object store by this process"),
		metric.WithUnit("By"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.bytes counter: %w", err))
	}
}

// S3Store implements Store on one S3 (or S3-compatible) bucket.
type S3Store struct {
	bucket string
	client *s3.Client
	signer *s3.PresignClient
	tracer trace.Tracer
}

var _ Store = (*S3Store)(nil)

func NewS3Store(bucket string, c *awsclient.S3Client) *S3Store {
	return &S3Store{
		bucket: bucket,
		client: c.Client,
		signer: c.Presigner,
		tracer: c.Tracer,
	}
}

func (s *S3Store) Bucket() string { return s.bucket }

func (s *S3Store) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (WriteCapability, error) {
	ctx, span := s.tracer.Start(ctx, "objstore.PresignPut",
		trace.WithAttributes(attribute.String("bucket", s.bucket), attribute.String("key", key)))
	defer span.End()

	req, err := s.signer.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		span.RecordError(err)
		return WriteCapability{}, fmt.Errorf("presign put %s/%s: %w", s.bucket, key, err)
	}

	presignCount.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", s.bucket)))
	return WriteCapability{
		URL:              req.URL,
		Key:              key,
		ExpiresInSeconds: int(expires / time.Second),
		ContentType:      contentType,
	}, nil
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		reason := "unknown"
		if isNotFound(err) {
			reason = "not_found"
			err = errors.Join(ErrNotFound, err)
		}
		openErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("bucket", s.bucket),
			attribute.String("reason", reason),
		))
		return nil, fmt.Errorf("get %s/%s: %w", s.bucket, key, err)
	}
	return &countingReader{ctx: ctx, rc: out.Body, bucket: s.bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	ctx, span := s.tracer.Start(ctx, "objstore.Put",
		trace.WithAttributes(attribute.String("bucket", s.bucket), attribute.String("key", key)))
	defer span.End()

	cr := &countingReader{ctx: ctx, rc: io.NopCloser(r), bucket: s.bucket, counter: uploadBytes}
	uploader := manager.NewUploader(s.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        cr,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"writer": "catalogrunner",
		},
	})
	cr.flush()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("upload %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *S3Store) Copy(ctx context.Context, src, dst string) error {
	source := (&url.URL{Path: s.bucket + "/" + src}).EscapedPath()
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(source),
		Key:        aws.String(dst),
	})
	if err != nil {
		if isNotFound(err) {
			err = errors.Join(ErrNotFound, err)
		}
		return fmt.Errorf("copy %s/%s to %s: %w", s.bucket, src, dst, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// countingReader reports bytes read to a counter when closed or flushed.
type countingReader struct {
	ctx     context.Context
	rc      io.ReadCloser
	bucket  string
	n       int64
	counter metric.Int64Counter
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) Close() error {
	c.flush()
	return c.rc.Close()
}

func (c *countingReader) flush() {
	if c.n == 0 {
		return
	}
	counter := c.counter
	if counter == nil {
		counter = readBytes
	}
	counter.Add(c.ctx, c.n, metric.WithAttributes(attribute.String("bucket", c.bucket)))
	c.n = 0
}
