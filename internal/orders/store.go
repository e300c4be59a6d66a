package orders

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

// ErrOrderExists reports a duplicate order id on create.
var ErrOrderExists = errors.New("order already exists")

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create commits the order aggregate (header + line items) in a single
// atomic conditional write. This write is the transaction boundary: the
// OrderCreated event may be published only after Create returned nil.
func (s *Store) Create(ctx context.Context, order Order) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.nowFunc().UTC()
	}

	item, err := attributevalue.MarshalMap(toRecord(order))
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrOrderExists
		}
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

// Get fetches an order by order id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var rec orderRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	order, err := fromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &order, nil
}

// List returns up to limit orders, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Order, error) {
	var all []Order
	var startKey map[string]types.AttributeValue
	for {
		page, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		for _, item := range page.Items {
			var rec orderRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("unmarshal order: %w", err)
			}
			order, err := fromRecord(rec)
			if err != nil {
				return nil, fmt.Errorf("decode order: %w", err)
			}
			all = append(all, order)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		startKey = page.LastEvaluatedKey
	}

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func awsString(s string) *string { return &s }
