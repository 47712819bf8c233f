// Package cache provides a Redis tier in front of a code-set loader so
// multiple submission workers share one catalog load.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KaripeHS/serenity-sub009/internal/evv/codeset"
)

const (
	catalogKey = "evv:codeset:catalog"
	defaultTTL = 6 * time.Hour
)

// RedisLoader caches the serialized catalog under a single key. Redis
// failures degrade to the inner loader; the cache is an optimization, not
// a source of truth.
type RedisLoader struct {
	client *redis.Client
	inner  codeset.Loader
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures the RedisLoader.
type Option func(*RedisLoader)

func WithTTL(ttl time.Duration) Option {
	return func(l *RedisLoader) { l.ttl = ttl }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *RedisLoader) { l.logger = logger }
}

func NewRedisLoader(client *redis.Client, inner codeset.Loader, opts ...Option) *RedisLoader {
	l := &RedisLoader{client: client, inner: inner, ttl: defaultTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLoader) LoadAll(ctx context.Context) ([]codeset.Entry, error) {
	cached, err := l.client.Get(ctx, catalogKey).Bytes()
	if err == nil {
		var entries []codeset.Entry
		if jsonErr := json.Unmarshal(cached, &entries); jsonErr == nil {
			return entries, nil
		}
		// Corrupt cache entry; fall through to reload and overwrite.
		l.logger.WarnContext(ctx, "corrupt code-set cache entry, reloading")
	} else if !errors.Is(err, redis.Nil) {
		l.logger.WarnContext(ctx, "code-set cache read failed", "error", err)
	}

	entries, err := l.inner.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal code-set catalog: %w", err)
	}
	if err := l.client.Set(ctx, catalogKey, payload, l.ttl).Err(); err != nil {
		l.logger.WarnContext(ctx, "code-set cache write failed", "error", err)
	}
	return entries, nil
}

// Invalidate drops the shared cache entry so the next load hits the
// backing store.
func (l *RedisLoader) Invalidate(ctx context.Context) error {
	return l.client.Del(ctx, catalogKey).Err()
}
