// Package redis provides the Redis-backed idempotency reference cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/store"
)

// ReferenceCache caches transactions by their idempotency reference so
// repeated strategy executions skip the store lookup. The store remains the
// source of truth; the cache is strictly read-through.
type ReferenceCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewReferenceCache creates a ReferenceCache.
func NewReferenceCache(client *redis.Client, ttl time.Duration) *ReferenceCache {
	return &ReferenceCache{
		client: client,
		prefix: "txref:",
		ttl:    ttl,
	}
}

var _ store.ReferenceCache = (*ReferenceCache)(nil)

// Get returns the cached transaction for a reference, or nil on miss.
func (c *ReferenceCache) Get(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	payload, err := c.client.Get(ctx, c.prefix+referenceID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var txn domain.Transaction
	if err := json.Unmarshal(payload, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

// Set caches a transaction under its reference.
func (c *ReferenceCache) Set(ctx context.Context, txn *domain.Transaction) error {
	if txn.ReferenceID == "" {
		return nil
	}

	payload, err := json.Marshal(txn)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+txn.ReferenceID, payload, c.ttl).Err()
}
