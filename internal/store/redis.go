package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sentinelpay/monitor/internal/domain"
)

// Redis keys for the mirrored feed.
const (
	feedKey      = "sentinelpay:feed"
	txKeyPrefix  = "sentinelpay:tx:"
	defaultTxTTL = 24 * time.Hour
)

// RedisFeed mirrors the live feed into Redis: a capped list of the newest
// transactions plus one key per transaction. It is a Sink and a Feed, not a
// Repository; retention is handled by list trimming and key TTLs.
type RedisFeed struct {
	client *redis.Client
	limit  int
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisFeed connects to addr and verifies the connection.
func NewRedisFeed(ctx context.Context, addr string, limit int) (*RedisFeed, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisFeedFromClient(client, limit), nil
}

// NewRedisFeedFromClient wraps an existing client.
func NewRedisFeedFromClient(client *redis.Client, limit int) *RedisFeed {
	return &RedisFeed{
		client: client,
		limit:  clampLimit(limit),
		ttl:    defaultTxTTL,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Save pushes tx onto the feed list and trims it to the configured length.
func (f *RedisFeed) Save(ctx context.Context, tx *domain.AnalyzedTransaction) error {
	if tx.PersistedAt.IsZero() {
		tx.PersistedAt = f.now()
	}
	payload, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}

	created, err := f.client.SetNX(ctx, txKeyPrefix+tx.ID, payload, f.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !created {
		return ErrDuplicate
	}

	pipe := f.client.TxPipeline()
	pipe.LPush(ctx, feedKey, payload)
	pipe.LTrim(ctx, feedKey, 0, int64(f.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis feed push: %w", err)
	}
	return nil
}

// Get reads one mirrored transaction.
func (f *RedisFeed) Get(ctx context.Context, id string) (*domain.AnalyzedTransaction, error) {
	raw, err := f.client.Get(ctx, txKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var tx domain.AnalyzedTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &tx, nil
}

// Recent returns up to limit mirrored transactions, newest first.
func (f *RedisFeed) Recent(ctx context.Context, limit int) ([]*domain.AnalyzedTransaction, error) {
	limit = clampLimit(limit)
	items, err := f.client.LRange(ctx, feedKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]*domain.AnalyzedTransaction, 0, len(items))
	for _, item := range items {
		var tx domain.AnalyzedTransaction
		if err := json.Unmarshal([]byte(item), &tx); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
		out = append(out, &tx)
	}
	return out, nil
}

// Close closes the Redis client.
func (f *RedisFeed) Close() error {
	return f.client.Close()
}
