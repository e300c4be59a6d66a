package invoices

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/orderhub/go-orderhub/internal/aws"
)

// invoiceIDIndex is the GSI serving lookups by invoice id.
const invoiceIDIndex = "invoice_id-index"

// ErrDuplicateOrder reports that an invoice for the order already exists.
// Consumers treat it as success: a redelivered event converges to a no-op
// instead of a second invoice.
var ErrDuplicateOrder = errors.New("invoice already exists for order")

// ErrNotFound reports a lookup miss on a direct identifier.
var ErrNotFound = errors.New("invoice not found")

// Store encapsulates invoice operations against DynamoDB.
//
// The table's partition key is order_id, so the storage engine itself
// rejects a second invoice for the same order. That constraint is the single
// source of truth for "has this order been billed" — concurrent consumer
// instances coordinate through it and nothing else.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore returns a Store bound to the invoices table.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Insert persists a new invoice. It fails with ErrDuplicateOrder when an
// invoice for inv.OrderID already exists, and persists atomically otherwise.
func (s *Store) Insert(ctx context.Context, inv Invoice) error {
	item, err := attributevalue.MarshalMap(toRecord(inv))
	if err != nil {
		return fmt.Errorf("marshal invoice: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("put invoice: %w", err)
	}
	return nil
}

// GetByOrder returns the invoice for an order, or ErrNotFound.
func (s *Store) GetByOrder(ctx context.Context, orderID string) (*Invoice, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get invoice by order: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return unmarshalInvoice(out.Item)
}

// Get returns the invoice with the given invoice id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, invoiceID string) (*Invoice, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(invoiceIDIndex),
		KeyConditionExpression: awsString("invoice_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: invoiceID},
		},
		Limit: awsInt32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query invoice: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, ErrNotFound
	}
	return unmarshalInvoice(out.Items[0])
}

// ListRecent returns up to limit invoices, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Invoice, error) {
	all, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ListSince returns up to limit invoices created at or after the cutoff,
// newest first, regardless of insertion order.
func (s *Store) ListSince(ctx context.Context, since time.Time, limit int) ([]Invoice, error) {
	all, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	kept := all[:0]
	for _, inv := range all {
		if !inv.CreatedAt.Before(since) {
			kept = append(kept, inv)
		}
	}
	sortNewestFirst(kept)
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept, nil
}

// Count returns the number of stored invoices.
func (s *Store) Count(ctx context.Context) (int, error) {
	var total int
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			Select:            types.SelectCount,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return 0, fmt.Errorf("count invoices: %w", err)
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return total, nil
}

// MarkPaid transitions the invoice OPEN -> PAID. The transition is a single
// conditional update, so concurrent callers cannot corrupt state: exactly
// one of them flips the status and the rest observe a no-op. Calling
// MarkPaid on an already-PAID invoice is a success, not an error.
func (s *Store) MarkPaid(ctx context.Context, invoiceID string) (*Invoice, error) {
	inv, err := s.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc().UTC()
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: inv.OrderID},
		},
		UpdateExpression:         awsString("SET #s = :paid, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":paid": &types.AttributeValueMemberS{Value: StatusPaid},
			":open": &types.AttributeValueMemberS{Value: StatusOpen},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
		ConditionExpression: awsString("#s = :open"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return nil, fmt.Errorf("mark paid: %w", err)
		}
		// Lost the race or retried: PAID already is the outcome we wanted.
		current, gerr := s.GetByOrder(ctx, inv.OrderID)
		if gerr != nil {
			return nil, fmt.Errorf("mark paid recheck: %w", gerr)
		}
		if current.Status != StatusPaid {
			return nil, fmt.Errorf("mark paid: unexpected status %s", current.Status)
		}
		return current, nil
	}

	inv.Status = StatusPaid
	inv.UpdatedAt = now
	return inv, nil
}

// DeleteByOrder removes the invoice for an order. Returns false when no
// invoice existed. Administrative operation; the consumer never deletes.
func (s *Store) DeleteByOrder(ctx context.Context, orderID string) (bool, error) {
	out, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, fmt.Errorf("delete invoice: %w", err)
	}
	return len(out.Attributes) > 0, nil
}

// DeleteAll removes every invoice and returns how many were deleted.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	all, err := s.scanAll(ctx)
	if err != nil {
		return 0, err
	}
	return s.deleteInvoices(ctx, all)
}

// DeleteOlderThan removes invoices created before the cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	all, err := s.scanAll(ctx)
	if err != nil {
		return 0, err
	}
	old := all[:0]
	for _, inv := range all {
		if inv.CreatedAt.Before(cutoff) {
			old = append(old, inv)
		}
	}
	return s.deleteInvoices(ctx, old)
}

func (s *Store) deleteInvoices(ctx context.Context, invs []Invoice) (int, error) {
	deleted := 0
	for _, inv := range invs {
		ok, err := s.DeleteByOrder(ctx, inv.OrderID)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) scanAll(ctx context.Context) ([]Invoice, error) {
	var out []Invoice
	var startKey map[string]types.AttributeValue
	for {
		page, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan invoices: %w", err)
		}
		for _, item := range page.Items {
			inv, err := unmarshalInvoice(item)
			if err != nil {
				return nil, err
			}
			out = append(out, *inv)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		startKey = page.LastEvaluatedKey
	}
	return out, nil
}

func unmarshalInvoice(item map[string]types.AttributeValue) (*Invoice, error) {
	var rec invoiceRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal invoice: %w", err)
	}
	inv, err := fromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("decode invoice amount: %w", err)
	}
	return &inv, nil
}

func sortNewestFirst(invs []Invoice) {
	sort.Slice(invs, func(i, j int) bool { return invs[i].CreatedAt.After(invs[j].CreatedAt) })
}

func awsString(s string) *string { return &s }
func awsInt32(n int32) *int32    { return &n }
