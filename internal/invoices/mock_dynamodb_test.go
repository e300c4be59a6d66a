package invoices

import (
	"context"
	"errors"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a small in-memory stand-in for the invoices table, keyed by
// order_id like the real one. It understands just enough of the condition
// expressions the Store issues. Not production-grade.
type mockDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	// failWith makes every call fail, simulating storage unavailability.
	failWith error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		items: map[string]map[string]types.AttributeValue{},
	}
}

func (m *mockDynamo) keyOf(item map[string]types.AttributeValue) (string, error) {
	attr, ok := item["order_id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing order_id")
	}
	return attr.Value, nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	k, err := m.keyOf(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(order_id)" {
		if _, exists := m.items[k]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.items[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	k, err := m.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.items[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	k, err := m.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.items[k]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}

	// supports the store's only condition: #s = :open
	if params.ConditionExpression != nil && *params.ConditionExpression == "#s = :open" {
		want := params.ExpressionAttributeValues[":open"].(*types.AttributeValueMemberS).Value
		got, ok := item["status"].(*types.AttributeValueMemberS)
		if !ok || got.Value != want {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	if v, ok := params.ExpressionAttributeValues[":paid"]; ok {
		item["status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":ua"]; ok {
		item["updated_at"] = v
	}
	m.items[k] = item
	return &dyn.UpdateItemOutput{}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	k, err := m.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.items[k]
	delete(m.items, k)

	out := &dyn.DeleteItemOutput{}
	if ok && params.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = item
	}
	return out, nil
}

func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	// supports only the invoice_id GSI lookup
	want := params.ExpressionAttributeValues[":id"].(*types.AttributeValueMemberS).Value
	for _, item := range m.items {
		if id, ok := item["invoice_id"].(*types.AttributeValueMemberS); ok && id.Value == want {
			return &dyn.QueryOutput{Items: []map[string]types.AttributeValue{item}}, nil
		}
	}
	return &dyn.QueryOutput{}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	out := &dyn.ScanOutput{Count: int32(len(m.items))}
	if params.Select == types.SelectCount {
		return out, nil
	}
	for _, item := range m.items {
		out.Items = append(out.Items, item)
	}
	return out, nil
}
