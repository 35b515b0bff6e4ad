package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// L2 is a Redis-backed layer. It fails soft: when Redis is unreachable reads
// report a miss and writes are dropped, so an outage degrades to recomputing
// values instead of failing actions.
type L2 struct {
	rdb    redis.UniversalClient
	prefix string
}

// L2Option configures an L2.
type L2Option func(*L2)

// WithKeyPrefix namespaces every key, for Redis instances shared between
// services.
func WithKeyPrefix(prefix string) L2Option {
	return func(l *L2) {
		l.prefix = prefix
	}
}

// NewL2 connects to a single Redis node.
func NewL2(addr, password string, db int, opts ...L2Option) *L2 {
	return NewL2FromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewL2FromClient wraps an existing client, which may be a cluster or
// failover client. Close closes it.
func NewL2FromClient(rdb redis.UniversalClient, opts ...L2Option) *L2 {
	l := &L2{rdb: rdb}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Get implements Layer. Misses and connection errors both return
// (nil, false, nil).
func (l *L2) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := l.rdb.Get(ctx, l.prefix+key).Bytes()
	if err != nil {
		return nil, false, nil
	}
	return val, true, nil
}

// Set implements Layer. Write errors are discarded.
func (l *L2) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	_ = l.rdb.Set(ctx, l.prefix+key, val, ttl).Err()
	return nil
}

// Ping checks the connection.
func (l *L2) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (l *L2) Close() error {
	return l.rdb.Close()
}
