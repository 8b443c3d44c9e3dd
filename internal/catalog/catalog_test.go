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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowValidate(t *testing.T) {
	tests := []struct {
		name      string
		row       Row
		wantField string
		wantPrice string
		wantCount int64
	}{
		{
			name:      "complete row",
			row:       Row{"price": "10", "title": "A", "description": "descA", "count": "3"},
			wantPrice: "10",
			wantCount: 3,
		},
		{
			name:      "zero count is present",
			row:       Row{"price": "20.50", "title": "B", "description": "descB", "count": "0"},
			wantPrice: "20.5",
			wantCount: 0,
		},
		{
			name:      "surrounding whitespace on numbers",
			row:       Row{"price": " 1.25 ", "title": "C", "description": "descC", "count": " 7 "},
			wantPrice: "1.25",
			wantCount: 7,
		},
		{
			name:      "missing count",
			row:       Row{"price": "10", "title": "A", "description": "descA"},
			wantField: "count",
		},
		{
			name:      "empty title",
			row:       Row{"price": "10", "title": "", "description": "descA", "count": "1"},
			wantField: "title",
		},
		{
			name:      "several missing",
			row:       Row{"title": "A"},
			wantField: "count,description,price",
		},
		{
			name:      "negative price",
			row:       Row{"price": "-1", "title": "A", "description": "d", "count": "1"},
			wantField: "price",
		},
		{
			name:      "price not a number",
			row:       Row{"price": "ten", "title": "A", "description": "d", "count": "1"},
			wantField: "price",
		},
		{
			name:      "fractional count",
			row:       Row{"price": "1", "title": "A", "description": "d", "count": "1.5"},
			wantField: "count",
		},
		{
			name:      "negative count",
			row:       Row{"price": "1", "title": "A", "description": "d", "count": "-2"},
			wantField: "count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, qty, err := tt.row.Validate()
			if tt.wantField != "" {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.wantField, ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrice, rec.Price.String())
			assert.Equal(t, tt.row["title"], rec.Title)
			assert.Equal(t, tt.row["description"], rec.Description)
			assert.Equal(t, tt.wantCount, qty.Count)
			assert.Empty(t, rec.ID)
		})
	}
}

func TestDecodeRow(t *testing.T) {
	row, err := DecodeRow(`{"price":"10","title":"A","description":"descA","count":"3","extra":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, Row{"price": "10", "title": "A", "description": "descA", "count": "3", "extra": "x"}, row)

	row, err = DecodeRow(`{"price":10,"title":"A","description":"d","count":0,"gone":null}`)
	require.NoError(t, err)
	assert.Equal(t, "10", row["price"])
	assert.Equal(t, "0", row["count"])
	_, ok := row["gone"]
	assert.False(t, ok)

	for _, body := range []string{``, `not json`, `[1,2]`, `null`, `{"price":{"a":1}}`} {
		_, err := DecodeRow(body)
		assert.True(t, IsValidation(err), "body %q", body)
	}
}

func TestRowEncodeRoundTrip(t *testing.T) {
	in := Row{"price": "10", "title": "A, with comma", "description": "line\nbreak", "count": "3"}
	body, err := in.Encode()
	require.NoError(t, err)
	out, err := DecodeRow(body)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestItemWithID(t *testing.T) {
	it := Item{Record: Record{Title: "A"}, Quantity: Quantity{Count: 2}}.WithID("abc")
	assert.Equal(t, "abc", it.Record.ID)
	assert.Equal(t, "abc", it.Quantity.ProductID)
	assert.Equal(t, int64(2), it.Quantity.Count)
}

func TestBatchNotification(t *testing.T) {
	ids := []string{"a", "b"}
	n := NewBatchNotification("", ids)
	ids[0] = "changed"

	assert.Equal(t, NotificationSubject, n.Subject)
	assert.Equal(t, 2, n.Count)
	assert.Equal(t, []string{"a", "b"}, n.CreatedIDs)

	body := n.Body()
	assert.Equal(t, NotificationMessage, body.Message)
	assert.Equal(t, []string{"a", "b"}, body.ProductIDs)
	assert.Equal(t, 2, body.Count)

	assert.Equal(t, []string{}, NewBatchNotification("s", nil).Body().ProductIDs)
}

func TestStatusCode(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", &ValidationError{Reason: "x"}, http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("outer: %w", &ValidationError{Reason: "x"}), http.StatusBadRequest},
		{"source", &SourceUnavailableError{Key: "k", Op: "get", Err: cause}, http.StatusInternalServerError},
		{"capability", &CapabilityIssuanceError{Key: "k", Err: cause}, http.StatusInternalServerError},
		{"batch write", &BatchWriteError{Attempted: 2, Failed: 1, Err: cause}, http.StatusInternalServerError},
		{"plain", cause, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	assert.ErrorIs(t, &SourceUnavailableError{Err: cause}, cause)
	assert.ErrorIs(t, &CapabilityIssuanceError{Err: cause}, cause)
	assert.ErrorIs(t, &BatchWriteError{Err: cause}, cause)
	assert.ErrorIs(t, &ParseError{Err: cause}, cause)
	assert.Contains(t, (&ParseError{Key: "inbox/a.csv", Line: 4, Err: cause}).Error(), "line 4")
}

func TestRequiredColumns(t *testing.T) {
	assert.Equal(t, []string{"count", "description", "price", "title"}, RequiredColumns())
}
