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

package streamparser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// ObjectCreated is one record of an object-created notification.
type ObjectCreated struct {
	Bucket string
	Key    string
	Size   int64
}

// ParseS3Event extracts object keys from an S3 event notification. Keys
// arrive URL-encoded; directory placeholders are dropped.
func ParseS3Event(raw []byte) ([]ObjectCreated, error) {
	var evt struct {
		Records []struct {
			EventName string `json:"eventName"`
			S3        struct {
				Bucket struct {
					Name string `json:"name"`
				} `json:"bucket"`
				Object struct {
					Key  string `json:"key"`
					Size int64  `json:"size"`
				} `json:"object"`
			} `json:"s3"`
		} `json:"Records"`
	}

	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("failed to parse S3 event: %w", err)
	}

	out := make([]ObjectCreated, 0, len(evt.Records))
	for _, rec := range evt.Records {
		if rec.EventName != "" && !strings.HasPrefix(rec.EventName, "ObjectCreated:") {
			continue
		}
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			slog.Error("Failed to unescape S3 object key", slog.String("key", rec.S3.Object.Key), slog.Any("error", err))
			continue
		}
		if key == "" || strings.HasSuffix(key, "/") {
			continue
		}
		out = append(out, ObjectCreated{
			Bucket: rec.S3.Bucket.Name,
			Key:    key,
			Size:   rec.S3.Object.Size,
		})
	}
	return out, nil
}
