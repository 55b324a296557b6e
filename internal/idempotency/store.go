package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/RaufCode/venella-pharmacy/internal/aws"
)

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow: how long a key is honored (e.g., 24*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	if ttlWindow <= 0 {
		ttlWindow = 24 * time.Hour
	}
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// CreateIfNotExists creates an IN_PROGRESS record for key. A record whose TTL
// has passed but which DynamoDB has not swept yet counts as absent.
// Returns (false, nil) when a live record exists; the caller should Get it.
func (s *Store) CreateIfNotExists(ctx context.Context, key string) (bool, error) {
	now := s.nowFunc().UTC()
	rec := Record{
		Key:       key,
		Status:    StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key) OR expires_at < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": number(now.Unix()),
		},
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Get retrieves a live record by key. Missing or expired records return (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            keyAttr(key),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	if rec.ExpiresAt > 0 && rec.ExpiresAt < s.nowFunc().Unix() {
		return nil, nil
	}
	return &rec, nil
}

// MarkDone stores the final response for replay. Only an IN_PROGRESS record
// can complete; ErrConditionFailed otherwise.
func (s *Store) MarkDone(ctx context.Context, key, orderID, responseBody string, responseStatus int) error {
	return s.transition(ctx, key, StatusInProgress, StatusDone,
		"order_id = :oid, response_body = :rb, response_status = :rs",
		map[string]types.AttributeValue{
			":oid": &types.AttributeValueMemberS{Value: orderID},
			":rb":  &types.AttributeValueMemberS{Value: responseBody},
			":rs":  number(int64(responseStatus)),
		})
}

// MarkFailed releases an IN_PROGRESS record so a retry can reclaim it.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	return s.transition(ctx, key, StatusInProgress, StatusFailed,
		"note = :n",
		map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberS{Value: note},
		})
}

// Reclaim moves a FAILED record back to IN_PROGRESS. It returns false when
// another request won the race or the record is not FAILED.
func (s *Store) Reclaim(ctx context.Context, key string) (bool, error) {
	err := s.transition(ctx, key, StatusFailed, StatusInProgress, "", nil)
	if errors.Is(err, ErrConditionFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ErrConditionFailed indicates the record was not in the expected state.
var ErrConditionFailed = errors.New("conditional check failed")

func (s *Store) transition(ctx context.Context, key, from, to, extra string, values map[string]types.AttributeValue) error {
	expr := "SET #s = :to, updated_at = :ua"
	if extra != "" {
		expr += ", " + extra
	}
	vals := map[string]types.AttributeValue{
		":from": &types.AttributeValueMemberS{Value: from},
		":to":   &types.AttributeValueMemberS{Value: to},
		":ua":   &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
	}
	for k, v := range values {
		vals[k] = v
	}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       keyAttr(key),
		UpdateExpression:          awsString(expr),
		ConditionExpression:       awsString("#s = :from"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: vals,
		ReturnValues:              types.ReturnValueNone,
	})
	if isConditionFailed(err) {
		return ErrConditionFailed
	}
	if err != nil {
		return fmt.Errorf("update item (%s -> %s): %w", from, to, err)
	}
	return nil
}

func isConditionFailed(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException"
}

func keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

func number(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
