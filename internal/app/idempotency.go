package app

import (
	"context"

	"github.com/xenking/oolio-shop/internal/handler"
	"github.com/xenking/oolio-shop/internal/storage/dynamo"
)

// idempotencyStore serves handler.IdempotencyStore from DynamoDB.
type idempotencyStore struct {
	store *dynamo.Store
}

var _ handler.IdempotencyStore = idempotencyStore{}

func (s idempotencyStore) Begin(ctx context.Context, key, requestHash string) (*handler.IdempotentResult, bool, error) {
	rec, claimed, err := s.store.Begin(ctx, key, requestHash)
	if err != nil || claimed {
		return nil, claimed, err
	}
	return &handler.IdempotentResult{
		Done:        rec.Status == dynamo.StatusDone,
		RequestHash: rec.RequestHash,
		Status:      rec.ResponseStatus,
		Body:        []byte(rec.ResponseBody),
	}, false, nil
}

func (s idempotencyStore) Complete(ctx context.Context, key string, status int, body []byte) error {
	return s.store.Complete(ctx, key, status, body)
}

func (s idempotencyStore) Release(ctx context.Context, key string) error {
	return s.store.Release(ctx, key)
}
