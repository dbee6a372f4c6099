package clipboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "previsit:clipboard:"

// Redis stores the exported note under a per-scope key that expires after ttl,
// so a paste target on another workstation can pick it up for a short while.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis builds a Redis clipboard. A zero ttl keeps entries until overwritten.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Key returns the Redis key used for scope.
func Key(scope string) string {
	return redisKeyPrefix + scope
}

func (r *Redis) WriteText(ctx context.Context, scope, text string) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("clipboard: redis client not configured")
	}
	if strings.TrimSpace(scope) == "" {
		return ErrEmptyScope
	}
	if err := r.client.Set(ctx, Key(scope), text, r.ttl).Err(); err != nil {
		return fmt.Errorf("clipboard: redis set: %w", err)
	}
	return nil
}
