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
	"io/fs"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/spf13/afero"
)

// FileStore implements Store on an afero filesystem rooted at a directory.
// It backs the single-process "local" command and tests. Capabilities it
// issues are file:// URLs carrying the expiry as a query parameter; nothing
// enforces them.
type FileStore struct {
	bucket string
	fs     afero.Fs
	now    func() time.Time
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store whose keys live under root on the OS filesystem.
func NewFileStore(bucket, root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", root, err)
	}
	return &FileStore{
		bucket: bucket,
		fs:     afero.NewBasePathFs(afero.NewOsFs(), root),
		now:    time.Now,
	}, nil
}

// NewMemStore returns a FileStore held entirely in memory.
func NewMemStore(bucket string) *FileStore {
	return &FileStore{
		bucket: bucket,
		fs:     afero.NewMemMapFs(),
		now:    time.Now,
	}
}

func (s *FileStore) Bucket() string { return s.bucket }

func (s *FileStore) PresignPut(_ context.Context, key, contentType string, expires time.Duration) (WriteCapability, error) {
	if err := checkKey(key); err != nil {
		return WriteCapability{}, err
	}
	q := url.Values{}
	q.Set("content-type", contentType)
	q.Set("expires", strconv.FormatInt(s.now().Add(expires).Unix(), 10))
	u := url.URL{
		Scheme:   "file",
		Host:     s.bucket,
		Path:     "/" + key,
		RawQuery: q.Encode(),
	}
	return WriteCapability{
		URL:              u.String(),
		Key:              key,
		ExpiresInSeconds: int(expires / time.Second),
		ContentType:      contentType,
	}, nil
}

func (s *FileStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = errors.Join(ErrNotFound, err)
		}
		return nil, fmt.Errorf("open %s/%s: %w", s.bucket, key, err)
	}
	return f, nil
}

func (s *FileStore) Put(_ context.Context, key, _ string, r io.Reader) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return fmt.Errorf("put %s/%s: %w", s.bucket, key, err)
	}
	f, err := s.fs.Create(key)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.bucket, key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("put %s/%s: %w", s.bucket, key, err)
	}
	return f.Close()
}

func (s *FileStore) Copy(ctx context.Context, src, dst string) error {
	rc, err := s.Open(ctx, src)
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	defer rc.Close()
	return s.Put(ctx, dst, "", rc)
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := s.fs.Remove(key)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Exists reports whether key is present.
func (s *FileStore) Exists(key string) (bool, error) {
	return afero.Exists(s.fs, key)
}

func checkKey(key string) error {
	if key == "" || !fs.ValidPath(key) {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}
