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

// Package streamparser turns an uploaded catalog file into one work queue
// message per row. The file is read as a stream and rows leave in bounded
// batches, so memory use does not grow with the file.
package streamparser

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/catalogrunner/internal/catalog"
	"github.com/cardinalhq/catalogrunner/internal/logctx"
	"github.com/cardinalhq/catalogrunner/internal/objstore"
	"github.com/cardinalhq/catalogrunner/internal/workqueue"
)

const (
	DefaultInboxPrefix     = "inbox/"
	DefaultProcessedPrefix = "processed/"
	DefaultBatchSize       = workqueue.MaxSendBatch

	utf8BOM = "\ufeff"
)

var (
	rowsEnqueued metric.Int64Counter
	rowsFailed   metric.Int64Counter
	rowsSkipped  metric.Int64Counter
	filesParsed  metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/catalogrunner/internal/streamparser")

	var err error
	rowsEnqueued, err = meter.Int64Counter(
		"catalogrunner.parser.rows.enqueued",
		metric.WithDescription("Rows accepted by the work queue"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.enqueued counter: %w", err))
	}

	rowsFailed, err = meter.Int64Counter(
		"catalogrunner.parser.rows.failed",
		metric.WithDescription("Rows the work queue refused"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.failed counter: %w", err))
	}

	rowsSkipped, err = meter.Int64Counter(
		"catalogrunner.parser.rows.skipped",
		metric.WithDescription("Malformed rows skipped during parsing"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.skipped counter: %w", err))
	}

	filesParsed, err = meter.Int64Counter(
		"catalogrunner.parser.files",
		metric.WithDescription("Files handled, by response status"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create files counter: %w", err))
	}
}

// Result summarises one parsed file.
type Result struct {
	Key          string
	ProcessedKey string
	Rows         int
	Enqueued     int
	Failed       int
	Skipped      int
	Batches      int
}

// Response is the structured result of one invocation.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type Parser struct {
	store           objstore.Store
	queue           workqueue.Queue
	inboxPrefix     string
	processedPrefix string
	batchSize       int
}

type Option func(*Parser)

func WithInboxPrefix(prefix string) Option {
	return func(p *Parser) { p.inboxPrefix = prefix }
}

func WithProcessedPrefix(prefix string) Option {
	return func(p *Parser) { p.processedPrefix = prefix }
}

// WithBatchSize sets how many rows go in one queue submission, clamped to
// [1, workqueue.MaxSendBatch].
func WithBatchSize(n int) Option {
	return func(p *Parser) { p.batchSize = min(max(n, 1), workqueue.MaxSendBatch) }
}

func NewParser(store objstore.Store, queue workqueue.Queue, opts ...Option) *Parser {
	p := &Parser{
		store:           store,
		queue:           queue,
		inboxPrefix:     DefaultInboxPrefix,
		processedPrefix: DefaultProcessedPrefix,
		batchSize:       DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Parser) InboxPrefix() string { return p.inboxPrefix }

// Handle parses key and converts the outcome to a Response.
func (p *Parser) Handle(ctx context.Context, key string) Response {
	ctx, ll := logctx.With(ctx, slog.String("objectKey", key))

	res, err := p.Parse(ctx, key)
	resp := Response{StatusCode: catalog.StatusCode(err)}
	switch {
	case err == nil:
		ll.Info("Catalog file parsed",
			slog.Int("rows", res.Rows),
			slog.Int("enqueued", res.Enqueued),
			slog.Int("failed", res.Failed),
			slog.Int("skipped", res.Skipped),
			slog.Int("batches", res.Batches),
			slog.String("processedKey", res.ProcessedKey))
		resp.Body = fmt.Sprintf("Parsed %d rows from %s", res.Rows, key)
	case catalog.IsValidation(err):
		ll.Warn("Ignoring object", slog.Any("error", err))
		resp.Body = "No usable object key found in event"
		var ve *catalog.ValidationError
		if errors.As(err, &ve) && ve.Field == "header" {
			resp.Body = "Unreadable catalog file header"
		}
	default:
		ll.Error("Error processing object", slog.Any("error", err))
		resp.Body = "Error processing object"
	}
	filesParsed.Add(ctx, 1, metric.WithAttributes(attribute.Int("status", resp.StatusCode)))
	return resp
}

// Parse streams key into the work queue and then relocates it to the
// processed prefix. Relocation happens only after every row was submitted.
func (p *Parser) Parse(ctx context.Context, key string) (Result, error) {
	res := Result{Key: key}
	if key == "" {
		return res, &catalog.ValidationError{Field: "objectKey", Reason: "required"}
	}
	if !strings.HasPrefix(key, p.inboxPrefix) || strings.HasSuffix(key, "/") {
		return res, &catalog.ValidationError{Field: "objectKey", Reason: "not a file under " + p.inboxPrefix}
	}

	rc, err := p.store.Open(ctx, key)
	if err != nil {
		return res, &catalog.SourceUnavailableError{Key: key, Op: "read", Err: err}
	}
	err = p.stream(ctx, key, rc, &res)
	_ = rc.Close()
	if err != nil {
		return res, err
	}

	res.ProcessedKey = p.processedPrefix + strings.TrimPrefix(key, p.inboxPrefix)
	if err := objstore.Relocate(ctx, p.store, key, res.ProcessedKey); err != nil {
		return res, &catalog.SourceUnavailableError{Key: key, Op: "relocate", Err: err}
	}
	return res, nil
}

func (p *Parser) stream(ctx context.Context, key string, r io.Reader, res *Result) error {
	ll := logctx.FromContext(ctx)
	attrs := metric.WithAttributes(attribute.String("bucket", p.store.Bucket()))

	br := bufio.NewReader(r)
	if err := skipBOM(br); err != nil {
		return &catalog.SourceUnavailableError{Key: key, Op: "read header", Err: err}
	}
	cr := csv.NewReader(br)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		ll.Warn("Empty catalog file")
		return nil
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return &catalog.ValidationError{Field: "header", Reason: "malformed csv header", Err: err}
		}
		return &catalog.SourceUnavailableError{Key: key, Op: "read header", Err: err}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	cr.FieldsPerRecord = len(header)

	batch := make([]workqueue.Entry, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res.Batches++
		failed, err := p.queue.SendBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("enqueue rows from %s: %w", key, ctx.Err())
			}
			ll.Error("Batch submit failed", slog.Any("error", err), slog.Int("entries", len(batch)))
			failed = workqueue.FailAll(batch, err)
		}
		for _, f := range failed {
			ll.Error("Failed to enqueue row",
				slog.String("entryId", f.ID),
				slog.String("code", f.Code),
				slog.String("reason", f.Reason))
		}
		res.Failed += len(failed)
		res.Enqueued += len(batch) - len(failed)
		rowsFailed.Add(ctx, int64(len(failed)), attrs)
		rowsEnqueued.Add(ctx, int64(len(batch)-len(failed)), attrs)
		batch = batch[:0]
		return nil
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return &catalog.SourceUnavailableError{Key: key, Op: "read", Err: err}
			}
			res.Skipped++
			rowsSkipped.Add(ctx, 1, attrs)
			ll.Warn("Skipping malformed row", slog.Any("error", &catalog.ParseError{Key: key, Line: pe.Line, Err: pe.Err}))
			continue
		}

		row := make(catalog.Row, len(header))
		for i, name := range header {
			row[name] = strings.TrimSpace(rec[i])
		}
		body, err := row.Encode()
		if err != nil {
			line, _ := cr.FieldPos(0)
			res.Skipped++
			ll.Warn("Skipping unencodable row", slog.Any("error", &catalog.ParseError{Key: key, Line: line, Err: err}))
			continue
		}

		res.Rows++
		batch = append(batch, workqueue.Entry{ID: strconv.Itoa(len(batch)), Body: body})
		if len(batch) == p.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// skipBOM drops a leading UTF-8 byte order mark from br.
func skipBOM(br *bufio.Reader) error {
	b, err := br.Peek(len(utf8BOM))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return err
	}
	if string(b) == utf8BOM {
		_, err = br.Discard(len(utf8BOM))
		return err
	}
	return nil
}
