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
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/shopspring/decimal"
)

// Column names every row must carry before it can become a Record.
const (
	ColumnPrice       = "price"
	ColumnTitle       = "title"
	ColumnDescription = "description"
	ColumnCount       = "count"
)

var requiredColumns = mapset.NewSet(ColumnPrice, ColumnTitle, ColumnDescription, ColumnCount)

// RequiredColumns returns the column names a row must provide, sorted.
func RequiredColumns() []string {
	cols := requiredColumns.ToSlice()
	slices.Sort(cols)
	return cols
}

// Row is one line of an uploaded file keyed by header column. It stays
// untyped until Validate turns it into a Record and a Quantity.
type Row map[string]string

// DecodeRow decodes a queue message body into a Row. Anything other than a
// JSON object of scalar values is a ValidationError.
func DecodeRow(body string) (Row, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, &ValidationError{Reason: "message body is not a JSON object", Err: err}
	}
	if raw == nil {
		return nil, &ValidationError{Reason: "message body is null"}
	}
	row := make(Row, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case string:
			row[k] = tv
		case float64:
			row[k] = strconv.FormatFloat(tv, 'f', -1, 64)
		case bool:
			row[k] = strconv.FormatBool(tv)
		case nil:
			// treated as absent
		default:
			return nil, &ValidationError{Field: k, Reason: fmt.Sprintf("unsupported value type %T", v)}
		}
	}
	return row, nil
}

// Encode returns the queue message body for the row.
func (r Row) Encode() (string, error) {
	b, err := json.Marshal(map[string]string(r))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Missing returns the required columns that are absent or empty, sorted.
func (r Row) Missing() []string {
	var missing []string
	for _, col := range RequiredColumns() {
		if strings.TrimSpace(r[col]) == "" {
			missing = append(missing, col)
		}
	}
	return missing
}

// Validate checks the required fields and converts the row into a Record and
// its Quantity. Both are returned without an ID; the caller assigns one.
func (r Row) Validate() (Record, Quantity, error) {
	if missing := r.Missing(); len(missing) > 0 {
		return Record{}, Quantity{}, &ValidationError{
			Field:  strings.Join(missing, ","),
			Reason: "missing required field",
		}
	}

	price, err := decimal.NewFromString(strings.TrimSpace(r[ColumnPrice]))
	if err != nil {
		return Record{}, Quantity{}, &ValidationError{Field: ColumnPrice, Reason: "not a decimal number", Err: err}
	}
	if price.IsNegative() {
		return Record{}, Quantity{}, &ValidationError{Field: ColumnPrice, Reason: "must not be negative"}
	}

	count, err := strconv.ParseInt(strings.TrimSpace(r[ColumnCount]), 10, 64)
	if err != nil {
		return Record{}, Quantity{}, &ValidationError{Field: ColumnCount, Reason: "not an integer", Err: err}
	}
	if count < 0 {
		return Record{}, Quantity{}, &ValidationError{Field: ColumnCount, Reason: "must not be negative"}
	}

	rec := Record{
		Price:       price,
		Title:       r[ColumnTitle],
		Description: r[ColumnDescription],
	}
	return rec, Quantity{Count: count}, nil
}
