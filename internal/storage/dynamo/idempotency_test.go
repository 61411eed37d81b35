package dynamo

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTable keeps items by idempotency_key and honours the conditions the store uses.
type fakeTable struct {
	items  map[string]map[string]types.AttributeValue
	putErr error
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: map[string]map[string]types.AttributeValue{}}
}

func keyString(k map[string]types.AttributeValue) string {
	return k["idempotency_key"].(*types.AttributeValueMemberS).Value
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	key := keyString(in.Item)
	if _, ok := f.items[key]; ok && aws.ToString(in.ConditionExpression) != "" {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[keyString(in.Key)]}, nil
}

func (f *fakeTable) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	item, ok := f.items[keyString(in.Key)]
	want := in.ExpressionAttributeValues[":progress"].(*types.AttributeValueMemberS).Value
	if !ok || item["status"].(*types.AttributeValueMemberS).Value != want {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("status")}
	}
	item["status"] = in.ExpressionAttributeValues[":done"]
	item["response_status"] = in.ExpressionAttributeValues[":rs"]
	item["response_body"] = in.ExpressionAttributeValues[":rb"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeTable) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items, keyString(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func newTestStore(table *fakeTable) *Store {
	s := NewStore(table, "idempotency", 24*time.Hour)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	table := newFakeTable()
	s := newTestStore(table)

	rec, claimed, err := s.Begin(ctx, "k1", "hash-a")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Nil(t, rec)

	rec, claimed, err = s.Begin(ctx, "k1", "hash-a")
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NotNil(t, rec)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, "hash-a", rec.RequestHash)
	assert.Equal(t, time.Date(2026, 1, 3, 3, 4, 5, 0, time.UTC).Unix(), rec.ExpiresAt)

	require.NoError(t, s.Complete(ctx, "k1", 201, []byte(`{"success":true}`)))
	rec, err = s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, rec.Status)
	assert.Equal(t, 201, rec.ResponseStatus)
	assert.Equal(t, `{"success":true}`, rec.ResponseBody)

	// A finished key cannot be completed twice.
	require.Error(t, s.Complete(ctx, "k1", 500, nil))
}

func TestStoreRelease(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newFakeTable())

	_, claimed, err := s.Begin(ctx, "k2", "h")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, s.Release(ctx, "k2"))

	_, claimed, err = s.Begin(ctx, "k2", "h")
	require.NoError(t, err)
	assert.True(t, claimed)

	rec, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStorePutError(t *testing.T) {
	table := newFakeTable()
	table.putErr = errors.New("throttled")
	_, _, err := newTestStore(table).Begin(context.Background(), "k3", "h")
	require.ErrorContains(t, err, "throttled")
}
