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

// Package uploadauth issues short-lived write capabilities that let a
// client upload one catalog file straight into the object store inbox.
package uploadauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/catalogrunner/internal/catalog"
	"github.com/cardinalhq/catalogrunner/internal/logctx"
	"github.com/cardinalhq/catalogrunner/internal/objstore"
)

const (
	DefaultExpiry      = 60 * time.Second
	DefaultContentType = "text/csv"
	DefaultInboxPrefix = "inbox/"

	msgMissingFileName = "Missing 'fileName' query parameter"
	msgIssueFailed     = "Failed to generate signed URL"

	reasonRequired = "required"
)

var requestCounter metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/catalogrunner/internal/uploadauth")

	var err error
	requestCounter, err = meter.Int64Counter(
		"catalogrunner.uploadauth.requests",
		metric.WithDescription("Capability requests by response status"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create requests counter: %w", err))
	}
}

type Request struct {
	FileName string `json:"fileName"`
}

// Response is the structured result of one invocation.
type Response struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body"`
}

type CapabilityBody struct {
	SignedURL string `json:"signedUrl"`
}

type MessageBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type Authorizer struct {
	store       objstore.Store
	inboxPrefix string
	contentType string
	expiry      time.Duration
}

type Option func(*Authorizer)

func WithInboxPrefix(prefix string) Option {
	return func(a *Authorizer) { a.inboxPrefix = prefix }
}

func WithContentType(ct string) Option {
	return func(a *Authorizer) { a.contentType = ct }
}

func WithExpiry(d time.Duration) Option {
	return func(a *Authorizer) { a.expiry = d }
}

func NewAuthorizer(store objstore.Store, opts ...Option) *Authorizer {
	a := &Authorizer{
		store:       store,
		inboxPrefix: DefaultInboxPrefix,
		contentType: DefaultContentType,
		expiry:      DefaultExpiry,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize mints a capability for the inbox key of req.FileName. It has no
// side effects beyond the minting itself.
func (a *Authorizer) Authorize(ctx context.Context, req Request) (objstore.WriteCapability, error) {
	key, err := a.ObjectKey(req.FileName)
	if err != nil {
		return objstore.WriteCapability{}, err
	}
	capability, err := a.store.PresignPut(ctx, key, a.contentType, a.expiry)
	if err != nil {
		return objstore.WriteCapability{}, &catalog.CapabilityIssuanceError{Key: key, Err: err}
	}
	return capability, nil
}

// Invoke runs Authorize and converts the outcome to a Response.
func (a *Authorizer) Invoke(ctx context.Context, req Request) Response {
	ctx, ll := logctx.With(ctx, slog.String("fileName", req.FileName))

	capability, err := a.Authorize(ctx, req)
	resp := Response{StatusCode: catalog.StatusCode(err)}
	switch {
	case err == nil:
		ll.Info("Issued upload capability", slog.String("key", capability.Key))
		resp.Body = CapabilityBody{SignedURL: capability.URL}
	case catalog.IsValidation(err):
		ll.Warn("Rejected upload capability request", slog.Any("error", err))
		resp.Body = MessageBody{Message: validationMessage(err)}
	default:
		ll.Error("Error generating signed URL", slog.Any("error", err))
		resp.Body = MessageBody{Message: msgIssueFailed, Error: err.Error()}
	}

	requestCounter.Add(ctx, 1, metric.WithAttributes(attribute.Int("status", resp.StatusCode)))
	return resp
}

// ObjectKey validates a caller-supplied file name and returns the inbox key
// it maps to.
func (a *Authorizer) ObjectKey(fileName string) (string, error) {
	name := strings.TrimSpace(fileName)
	if err := validateFileName(name); err != nil {
		return "", err
	}
	return a.inboxPrefix + name, nil
}

func validateFileName(name string) error {
	if name == "" {
		return &catalog.ValidationError{Field: "fileName", Reason: reasonRequired}
	}
	if strings.HasPrefix(name, "/") {
		return &catalog.ValidationError{Field: "fileName", Reason: "must be relative"}
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return &catalog.ValidationError{Field: "fileName", Reason: "must not contain '..'"}
		}
	}
	return nil
}

func validationMessage(err error) string {
	var ve *catalog.ValidationError
	if errors.As(err, &ve) && ve.Reason == reasonRequired {
		return msgMissingFileName
	}
	return "Invalid 'fileName' query parameter"
}
