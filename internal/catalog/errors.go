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

package catalog

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports caller or input data that can never succeed as sent.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ParseError is a single malformed line in an uploaded file. It is logged
// and the line skipped; it never fails the file.
type ParseError struct {
	Key  string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s line %d: %v", e.Key, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SourceUnavailableError means the object store could not serve or relocate
// an uploaded file.
type SourceUnavailableError struct {
	Key string
	Op  string
	Err error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("object store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// CapabilityIssuanceError means the object store refused or failed to mint a
// write capability.
type CapabilityIssuanceError struct {
	Key string
	Err error
}

func (e *CapabilityIssuanceError) Error() string {
	return fmt.Sprintf("issue write capability for %s: %v", e.Key, e.Err)
}

func (e *CapabilityIssuanceError) Unwrap() error { return e.Err }

// BatchWriteError carries every store write that failed for one delivered
// batch. Writes that succeeded are not rolled back.
type BatchWriteError struct {
	Attempted int
	Failed    int
	Err       error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("batch write: %d of %d writes failed: %v", e.Failed, e.Attempted, e.Err)
}

func (e *BatchWriteError) Unwrap() error { return e.Err }

// StatusCode maps an error to the status class reported at an invocation
// boundary. A nil error is 200, a ValidationError is 400 and anything else
// is treated as an infrastructure fault.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
