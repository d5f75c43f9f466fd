package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"apotekin/backend/internal/domain"
)

const receiptKeyPrefix = "apotekin:receipt:"

type RedisReceiptCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisReceiptCache(addr string, password string, db int, ttl time.Duration) *RedisReceiptCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &RedisReceiptCache{client: client, ttl: ttl}
}

func (c *RedisReceiptCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReceiptCache) Close() error {
	return c.client.Close()
}

func (c *RedisReceiptCache) Get(ctx context.Context, saleID uuid.UUID) (*domain.SaleReceipt, bool, error) {
	val, err := c.client.Get(ctx, receiptKey(saleID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var receipt domain.SaleReceipt
	if err := json.Unmarshal(val, &receipt); err != nil {
		return nil, false, err
	}
	return &receipt, true, nil
}

func (c *RedisReceiptCache) Set(ctx context.Context, receipt domain.SaleReceipt) error {
	payload, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, receiptKey(receipt.ID), payload, c.ttl).Err()
}

func (c *RedisReceiptCache) Delete(ctx context.Context, saleID uuid.UUID) error {
	return c.client.Del(ctx, receiptKey(saleID)).Err()
}

func receiptKey(saleID uuid.UUID) string {
	return receiptKeyPrefix + saleID.String()
}
