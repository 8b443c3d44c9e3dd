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

package catalogstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/cardinalhq/catalogrunner/internal/awsclient"
	"github.com/cardinalhq/catalogrunner/internal/catalog"
)

// DynamoAPI is the part of the DynamoDB client the store calls.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore writes records and quantities to two DynamoDB tables keyed by
// "id" and "product_id".
type DynamoStore struct {
	api           DynamoAPI
	recordTable   string
	quantityTable string
}

var _ Store = (*DynamoStore)(nil)

type recordItem struct {
	ID          string                `dynamodbav:"id"`
	Price       attributevalue.Number `dynamodbav:"price"`
	Title       string                `dynamodbav:"title"`
	Description string                `dynamodbav:"description"`
}

type quantityItem struct {
	ProductID string                `dynamodbav:"product_id"`
	Count     attributevalue.Number `dynamodbav:"count"`
}

func NewDynamoStore(c *awsclient.DynamoDBClient, recordTable, quantityTable string) *DynamoStore {
	return newDynamoStore(c.Client, recordTable, quantityTable)
}

func newDynamoStore(api DynamoAPI, recordTable, quantityTable string) *DynamoStore {
	return &DynamoStore{api: api, recordTable: recordTable, quantityTable: quantityTable}
}

func (s *DynamoStore) PutRecord(ctx context.Context, r catalog.Record) error {
	item, err := attributevalue.MarshalMap(recordItem{
		ID:          r.ID,
		Price:       attributevalue.Number(r.Price.String()),
		Title:       r.Title,
		Description: r.Description,
	})
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", r.ID, err)
	}
	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.recordTable),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put record %s into %s: %w", r.ID, s.recordTable, err)
	}
	return nil
}

func (s *DynamoStore) PutQuantity(ctx context.Context, q catalog.Quantity) error {
	item, err := attributevalue.MarshalMap(quantityItem{
		ProductID: q.ProductID,
		Count:     attributevalue.Number(fmt.Sprintf("%d", q.Count)),
	})
	if err != nil {
		return fmt.Errorf("marshal quantity %s: %w", q.ProductID, err)
	}
	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.quantityTable),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put quantity %s into %s: %w", q.ProductID, s.quantityTable, err)
	}
	return nil
}

func (s *DynamoStore) GetRecord(ctx context.Context, id string) (catalog.Record, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.recordTable),
		Key:            map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return catalog.Record{}, fmt.Errorf("get record %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return catalog.Record{}, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return decodeRecord(out.Item)
}

func (s *DynamoStore) GetQuantity(ctx context.Context, productID string) (catalog.Quantity, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.quantityTable),
		Key:            map[string]types.AttributeValue{"product_id": &types.AttributeValueMemberS{Value: productID}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return catalog.Quantity{}, fmt.Errorf("get quantity %s: %w", productID, err)
	}
	if len(out.Item) == 0 {
		return catalog.Quantity{}, fmt.Errorf("quantity %s: %w", productID, ErrNotFound)
	}
	return decodeQuantity(out.Item)
}

func (s *DynamoStore) ListRecords(ctx context.Context) ([]catalog.Record, error) {
	var out []catalog.Record
	err := s.scan(ctx, s.recordTable, func(item map[string]types.AttributeValue) error {
		r, err := decodeRecord(item)
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (s *DynamoStore) ListQuantities(ctx context.Context) ([]catalog.Quantity, error) {
	var out []catalog.Quantity
	err := s.scan(ctx, s.quantityTable, func(item map[string]types.AttributeValue) error {
		q, err := decodeQuantity(item)
		if err != nil {
			return err
		}
		out = append(out, q)
		return nil
	})
	return out, err
}

func (s *DynamoStore) scan(ctx context.Context, table string, fn func(map[string]types.AttributeValue) error) error {
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		for _, item := range out.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (s *DynamoStore) Close() error { return nil }

func decodeRecord(item map[string]types.AttributeValue) (catalog.Record, error) {
	var ri recordItem
	if err := attributevalue.UnmarshalMap(item, &ri); err != nil {
		return catalog.Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	price, err := decimal.NewFromString(ri.Price.String())
	if err != nil {
		return catalog.Record{}, fmt.Errorf("record %s price %q: %w", ri.ID, ri.Price, err)
	}
	return catalog.Record{ID: ri.ID, Price: price, Title: ri.Title, Description: ri.Description}, nil
}

func decodeQuantity(item map[string]types.AttributeValue) (catalog.Quantity, error) {
	var qi quantityItem
	if err := attributevalue.UnmarshalMap(item, &qi); err != nil {
		return catalog.Quantity{}, fmt.Errorf("unmarshal quantity: %w", err)
	}
	count, err := qi.Count.Int64()
	if err != nil {
		return catalog.Quantity{}, fmt.Errorf("quantity %s count %q: %w", qi.ProductID, qi.Count, err)
	}
	return catalog.Quantity{ProductID: qi.ProductID, Count: count}, nil
}
