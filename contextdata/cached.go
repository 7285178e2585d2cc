package contextdata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pola2025/zipcheck-sub000/analysis"
)

// Cached memoizes another Provider's summaries in Redis, keyed by region
// and the set of item categories. Redis failures fall through to the
// wrapped provider.
type Cached struct {
	next   Provider
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

var _ Provider = (*Cached)(nil)

// NewCached wraps next with a Redis cache.
func NewCached(next Provider, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, client: client, ttl: ttl, logger: logger}
}

// Summarize returns the cached summary or asks the wrapped provider.
func (c *Cached) Summarize(ctx context.Context, req *analysis.Request) (string, error) {
	key := cacheKey(req)

	hit, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return hit, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("context cache read failed", "error", err)
	}

	summary, err := c.next.Summarize(ctx, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(summary) != "" {
		if err := c.client.Set(ctx, key, summary, c.ttl).Err(); err != nil {
			c.logger.Warn("context cache write failed", "error", err)
		}
	}
	return summary, nil
}

func cacheKey(req *analysis.Request) string {
	cats := req.Categories()
	sort.Strings(cats)
	h := sha256.New()
	h.Write([]byte(req.Region))
	for _, c := range cats {
		h.Write([]byte{0})
		h.Write([]byte(c))
	}
	return "zipcheck:ctx:" + hex.EncodeToString(h.Sum(nil))
}
