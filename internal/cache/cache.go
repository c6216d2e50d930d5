// Package cache memoizes expensive pipeline operations in a TTL key/value store.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/affiche/internal/metrics"
	"github.com/JakeFAU/affiche/internal/movie"
)

// DefaultTTL is the expiry applied to every entry unless configured otherwise.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "affiche"

// Store is an opaque key/value store with per-entry expiry.
// Implementations must make Get and Set atomic per key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache binds a Store to a TTL and logger.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a Cache. A non-positive ttl falls back to DefaultTTL.
func New(store Store, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: store, ttl: ttl, logger: logger}
}

// TTL reports the expiry applied to new entries.
func (c *Cache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

// Key derives a deterministic cache key from an operation name and its arguments.
func Key(op string, args ...any) string {
	if len(args) == 0 {
		return fmt.Sprintf("%s:%s", keyPrefix, op)
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%#v", args))
	}
	sum := sha256.Sum256(encoded)
	return fmt.Sprintf("%s:%s:%s", keyPrefix, op, hex.EncodeToString(sum[:]))
}

// Memoize returns the cached value for (op, args) or computes, stores and returns it.
// Errors from fn are returned and never cached; store failures degrade to a miss.
func Memoize[T any](
	ctx context.Context,
	c *Cache,
	op string,
	args []any,
	fn func(context.Context) (T, error),
) (T, error) {
	if c == nil || c.store == nil {
		return fn(ctx)
	}
	key := Key(op, args...)

	if raw, ok := c.lookup(ctx, op, key); ok {
		var cached T
		err := json.Unmarshal(raw, &cached)
		if err == nil {
			metrics.ObserveCache(op, "hit")
			return cached, nil
		}
		c.logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
	}
	metrics.ObserveCache(op, "miss")

	value, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.put(ctx, key, value)
	return value, nil
}

// FetchBody performs request through f and memoizes the body of a successful response,
// keyed by the request URL and query parameters.
func (c *Cache) FetchBody(ctx context.Context, f movie.Fetcher, op string, request movie.FetchRequest) ([]byte, error) {
	return Memoize(ctx, c, op, []any{request.URL, encodeParams(request.Params)}, func(ctx context.Context) ([]byte, error) {
		resp, err := f.Fetch(ctx, request)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	})
}

func (c *Cache) lookup(ctx context.Context, op, key string) ([]byte, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("op", op), zap.Error(err))
		return nil, false
	}
	return raw, ok
}

func (c *Cache) put(ctx context.Context, key string, value any) {
	encoded, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, encoded, c.ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func encodeParams(params url.Values) string {
	if len(params) == 0 {
		return ""
	}
	return params.Encode()
}
