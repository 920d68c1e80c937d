package portalauth

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/session"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenPersistence opens the backend selected by cfg.Backend. The returned
// closer releases the backend's connections and must be called after the
// client is closed.
func OpenPersistence(ctx context.Context, cfg SessionConfig) (session.Persistence, io.Closer, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return session.NewMemoryPersistence(), nopCloser{}, nil

	case BackendSQLite:
		p, err := session.OpenSQLite(cfg.SQLitePath, cfg.KeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("%w: %v", session.ErrPersistenceUnavailable, err)
		}
		return session.NewRedisPersistence(client, cfg.KeyPrefix, cfg.RedisTTL), client, nil

	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
