package handlers

import (
	"context"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// memDynamo is enough of DynamoDB for the idempotency store: conditional
// puts on a missing key and status-guarded SET updates. Like the SDK it fails
// calls made with a finished context.
type memDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newMemDynamo() *memDynamo {
	return &memDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func itemKey(m map[string]types.AttributeValue) string {
	return m["idempotency_key"].(*types.AttributeValueMemberS).Value
}

func (m *memDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, _ ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := itemKey(in.Item)
	if _, exists := m.items[k]; exists && in.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{}
	}
	m.items[k] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *memDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, _ ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &dyn.GetItemOutput{Item: m.items[itemKey(in.Key)]}, nil
}

func (m *memDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, _ ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemKey(in.Key)]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	vals := in.ExpressionAttributeValues
	cur := item["status"].(*types.AttributeValueMemberS).Value
	if cur != vals[":from"].(*types.AttributeValueMemberS).Value {
		return nil, &types.ConditionalCheckFailedException{}
	}
	for _, set := range strings.Split(strings.TrimPrefix(*in.UpdateExpression, "SET "), ",") {
		lhs, rhs, _ := strings.Cut(set, "=")
		name := strings.TrimSpace(lhs)
		if alias, ok := in.ExpressionAttributeNames[name]; ok {
			name = alias
		}
		item[name] = vals[strings.TrimSpace(rhs)]
	}
	return &dyn.UpdateItemOutput{}, nil
}

func (m *memDynamo) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
