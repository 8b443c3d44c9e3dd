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

// Package objstore is the object store used by the ingestion pipeline:
// it mints write capabilities for uploads, streams uploaded files back out,
// and relocates them once they are handled.
package objstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned (wrapped) when a key does not exist.
var ErrNotFound = errors.New("object not found")

// WriteCapability is a time-boxed URL that lets a client write one key.
// The store enforces the expiry; nothing about it is persisted here.
type WriteCapability struct {
	URL              string `json:"signedUrl"`
	Key              string `json:"-"`
	ExpiresInSeconds int    `json:"-"`
	ContentType      string `json:"-"`
}

// Store is the subset of object storage the pipeline depends on. All keys
// are relative to the store's bucket.
type Store interface {
	// PresignPut mints a capability to PUT key with contentType within expires.
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (WriteCapability, error)

	// Open streams the object's content. The caller closes the reader.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Put writes the object from r.
	Put(ctx context.Context, key, contentType string, r io.Reader) error

	// Copy duplicates src to dst within the bucket.
	Copy(ctx context.Context, src, dst string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Bucket names the bucket the store is bound to.
	Bucket() string
}

// Relocate copies src to dst and then deletes src. The two steps are not
// atomic; a failure after the copy leaves the object in both places.
func Relocate(ctx context.Context, s Store, src, dst string) error {
	if err := s.Copy(ctx, src, dst); err != nil {
		return err
	}
	return s.Delete(ctx, src)
}
