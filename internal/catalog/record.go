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
	"github.com/shopspring/decimal"
)

// Record is a catalog entry as stored in the record store. ID is assigned by
// the batch consumer and never changes.
type Record struct {
	ID          string          `json:"id"`
	Price       decimal.Decimal `json:"price"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
}

// Quantity is the stock count for a Record, keyed by the same ID.
type Quantity struct {
	ProductID string `json:"product_id"`
	Count     int64  `json:"count"`
}

// Item pairs a validated record with its quantity, sharing one ID.
type Item struct {
	Record   Record   `json:"record"`
	Quantity Quantity `json:"quantity"`
}

// WithID returns the item with id set on both halves.
func (it Item) WithID(id string) Item {
	it.Record.ID = id
	it.Quantity.ProductID = id
	return it
}

const (
	NotificationSubject = "Catalog batch processed"
	NotificationMessage = "New products created"
)

// BatchNotification announces the records created by one acknowledged batch.
type BatchNotification struct {
	Subject    string   `json:"subject"`
	CreatedIDs []string `json:"createdIds"`
	Count      int      `json:"count"`
}

// NotificationBody is the structured message published to subscribers.
type NotificationBody struct {
	Message    string   `json:"message"`
	ProductIDs []string `json:"productIds"`
	Count      int      `json:"count"`
}

// NewBatchNotification builds the notification for ids, copying the slice.
func NewBatchNotification(subject string, ids []string) BatchNotification {
	if subject == "" {
		subject = NotificationSubject
	}
	created := make([]string, len(ids))
	copy(created, ids)
	return BatchNotification{
		Subject:    subject,
		CreatedIDs: created,
		Count:      len(created),
	}
}

// Body returns the message payload for n.
func (n BatchNotification) Body() NotificationBody {
	ids := n.CreatedIDs
	if ids == nil {
		ids = []string{}
	}
	return NotificationBody{
		Message:    NotificationMessage,
		ProductIDs: ids,
		Count:      n.Count,
	}
}
