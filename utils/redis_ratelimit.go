package utils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter - ограничение частоты фиксированным окном в Redis,
// общее для всех экземпляров сервиса.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	scope  string
	limit  int
	window time.Duration
}

// NewRedisRateLimiter создает limiter для области scope (например, "transfer")
func NewRedisRateLimiter(client redis.UniversalClient, prefix, scope string, limit int, window time.Duration) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "bank:rate_limit"
	}
	return &RedisRateLimiter{
		client: client,
		prefix: prefix,
		scope:  scope,
		limit:  limit,
		window: window,
	}
}

// Limit возвращает число запросов в окне
func (r *RedisRateLimiter) Limit() int {
	return r.limit
}

// Consume увеличивает счетчик ключа и сообщает, укладывается ли запрос в лимит
func (r *RedisRateLimiter) Consume(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.client == nil || r.limit <= 0 || r.window <= 0 {
		return true, 0, nil
	}
	subject := strings.TrimSpace(key)
	if subject == "" {
		return true, 0, nil
	}

	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	redisKey := fmt.Sprintf("%s:%s:%s", r.prefix, r.scope, subject)
	raw, err := fixedWindowScript.Run(ctx, r.client, []string{redisKey}, windowMs).Result()
	if err != nil {
		return false, 0, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	count, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	if count > int64(r.limit) {
		retry := time.Duration(ttlMs) * time.Millisecond
		if retry < time.Second {
			retry = time.Second
		}
		return false, retry, nil
	}
	return true, 0, nil
}
