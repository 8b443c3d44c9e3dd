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

// Package catalogstore persists catalog records and their quantities. The
// two live in separate stores with no transaction spanning them.
package catalogstore

import (
	"context"
	"errors"

	"github.com/cardinalhq/catalogrunner/internal/catalog"
)

var ErrNotFound = errors.New("not found")

type RecordStore interface {
	PutRecord(ctx context.Context, r catalog.Record) error
	GetRecord(ctx context.Context, id string) (catalog.Record, error)
	ListRecords(ctx context.Context) ([]catalog.Record, error)
}

type QuantityStore interface {
	PutQuantity(ctx context.Context, q catalog.Quantity) error
	GetQuantity(ctx context.Context, productID string) (catalog.Quantity, error)
	ListQuantities(ctx context.Context) ([]catalog.Quantity, error)
}

// Store is a backend that implements both halves.
type Store interface {
	RecordStore
	QuantityStore
	Close() error
}

const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)
