package app

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oolio-shop/internal/storage/dynamo"
	"github.com/xenking/oolio-shop/internal/storage/sqlstore"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoadConfig(t *testing.T) {
	t.Setenv("SHOP_DATABASE_DSN", "shop:shop@tcp(localhost:3306)/shop")
	t.Setenv("SHOP_AUTH_JWT_SECRET", secret)
	t.Setenv("SHOP_RATE_LIMIT_MAX", "7")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, 7, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, secret, cfg.Auth.SessionPepper, "pepper falls back to the JWT secret")
	assert.True(t, cfg.Orders.TrustClientPrice)
	assert.False(t, cfg.Orders.StrictTransitions)
	assert.True(t, cfg.CORS.AllowCredentials)
	assert.True(t, cfg.Database.Migrate)
	assert.Equal(t, sqlstore.MySQL, sqlstore.DetectDialect(cfg.Database.sqlstore().DSN))
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://shop@db/shop")
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: "0.0.0.0:8080", Auth: AuthConfig{SessionPepper: "pepper"}}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://shop@db/shop", cfg.Database.DSN)
	assert.Equal(t, secret, cfg.Auth.JWTSecret)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, "pepper", cfg.Auth.SessionPepper)

	explicit := Config{Addr: "127.0.0.1:7000", Database: DatabaseConfig{DSN: "explicit"}}
	explicit.applyPlatformDefaults()
	assert.Equal(t, "127.0.0.1:7000", explicit.Addr)
	assert.Equal(t, "explicit", explicit.Database.DSN)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"Valid", Config{Database: DatabaseConfig{DSN: "x"}, Auth: AuthConfig{JWTSecret: secret}}, ""},
		{"MissingAll", Config{}, "SHOP_DATABASE_DSN, SHOP_AUTH_JWT_SECRET"},
		{"MissingSecret", Config{Database: DatabaseConfig{DSN: "x"}}, "SHOP_AUTH_JWT_SECRET"},
		{"ShortSecret", Config{Database: DatabaseConfig{DSN: "x"}, Auth: AuthConfig{JWTSecret: "short"}}, "at least 32 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// table is an in-memory DynamoDB table honouring the store's conditions.
type table struct {
	items map[string]map[string]types.AttributeValue
}

func keyOf(k map[string]types.AttributeValue) string {
	return k["idempotency_key"].(*types.AttributeValueMemberS).Value
}

func (f *table) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if _, ok := f.items[keyOf(in.Item)]; ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	f.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *table) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *table) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	item := f.items[keyOf(in.Key)]
	item["status"] = in.ExpressionAttributeValues[":done"]
	item["response_status"] = in.ExpressionAttributeValues[":rs"]
	item["response_body"] = in.ExpressionAttributeValues[":rb"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *table) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	s := idempotencyStore{store: dynamo.NewStore(&table{items: map[string]map[string]types.AttributeValue{}}, "keys", time.Hour)}

	res, claimed, err := s.Begin(ctx, "u::k1", "h1")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Nil(t, res)

	res, claimed, err = s.Begin(ctx, "u::k1", "h1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.False(t, res.Done)
	assert.Equal(t, "h1", res.RequestHash)

	require.NoError(t, s.Complete(ctx, "u::k1", 201, []byte(`{"success":true}`)))
	res, claimed, err = s.Begin(ctx, "u::k1", "h1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.True(t, res.Done)
	assert.Equal(t, 201, res.Status)
	assert.JSONEq(t, `{"success":true}`, string(res.Body))

	require.NoError(t, s.Release(ctx, "u::k1"))
	_, claimed, err = s.Begin(ctx, "u::k1", "h2")
	require.NoError(t, err)
	assert.True(t, claimed)
}
