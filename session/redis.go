package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPersistence stores the session pair as two Redis string keys under a
// shared prefix.
type RedisPersistence struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisPersistence creates a [RedisPersistence]. prefix namespaces the keys;
// ttl bounds how long an untouched pair survives, zero meaning no expiry.
func NewRedisPersistence(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisPersistence {
	if prefix == "" {
		prefix = "portal"
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisPersistence{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisPersistence) key(name string) string {
	return r.prefix + ":session:" + name
}

// Load reads both entries in one round-trip.
func (r *RedisPersistence) Load(ctx context.Context) (Record, error) {
	values, err := r.redis.MGet(ctx, r.key(TokenKey), r.key(UserKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}

	var rec Record
	if len(values) == 2 {
		rec.Token, _ = values[0].(string)
		rec.User, _ = values[1].(string)
	}
	return rec, nil
}

// Save writes both entries inside a MULTI/EXEC transaction.
func (r *RedisPersistence) Save(ctx context.Context, rec Record) error {
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(TokenKey), rec.Token, r.ttl)
		pipe.Set(ctx, r.key(UserKey), rec.User, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}

// Clear deletes both entries. Missing keys are not an error.
func (r *RedisPersistence) Clear(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.key(TokenKey), r.key(UserKey)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}
