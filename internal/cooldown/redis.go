package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/redis/go-redis/v9"
)

var _ domain.EscalationState = (*RedisState)(nil)

// acquireScript compares the stored timestamp with the caller's clock and
// writes the new one in the same step. The key expires with the window so
// idle sources cost nothing.
var acquireScript = redis.NewScript(`
local last = redis.call('GET', KEYS[1])
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
if last and now - tonumber(last) < window then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', window)
return 1
`)

// RedisState shares cooldowns between replicas through Redis.
type RedisState struct {
	rdb    redis.UniversalClient
	prefix string
}

// RedisOption configures RedisState.
type RedisOption func(*RedisState)

// WithKeyPrefix sets the key namespace (default "guardian:cooldown:").
func WithKeyPrefix(p string) RedisOption {
	return func(s *RedisState) {
		s.prefix = p
	}
}

// NewRedisState wraps an existing client.
func NewRedisState(rdb redis.UniversalClient, opts ...RedisOption) *RedisState {
	s := &RedisState{rdb: rdb, prefix: "guardian:cooldown:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TryAcquire implements domain.EscalationState.
func (s *RedisState) TryAcquire(ctx context.Context, sourceID string, now time.Time, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	res, err := acquireScript.Run(ctx, s.rdb, []string{s.prefix + sourceID}, now.UnixMilli(), window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("cooldown: redis acquire for %q: %w", sourceID, err)
	}
	return res == 1, nil
}
