package utils

import (
	"context"
	"sync"
	"time"
)

// Limiter ограничивает число операций по ключу (пользователь, IP)
type Limiter interface {
	Consume(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
	Limit() int
}

// RateLimiter реализует ограничение частоты запросов скользящим окном в памяти процесса
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter создает новый RateLimiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Limit возвращает число запросов в окне
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// Allow проверяет, разрешен ли запрос
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := rl.pruneLocked(key)
	if len(valid) >= rl.limit {
		return false
	}
	rl.requests[key] = append(valid, rl.now())
	return true
}

// Consume реализует Limiter
func (rl *RateLimiter) Consume(_ context.Context, key string) (bool, time.Duration, error) {
	if rl.Allow(key) {
		return true, 0, nil
	}
	retry := rl.GetResetTime(key).Sub(rl.now())
	if retry < time.Second {
		retry = time.Second
	}
	return false, retry, nil
}

// Reset сбрасывает счетчик для ключа
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.requests, key)
}

// GetRemaining возвращает количество оставшихся запросов
func (rl *RateLimiter) GetRemaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	remaining := rl.limit - len(rl.pruneLocked(key))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetResetTime возвращает момент, когда освободится место в окне
func (rl *RateLimiter) GetResetTime(key string) time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := rl.pruneLocked(key)
	if len(valid) == 0 {
		return rl.now()
	}
	return valid[0].Add(rl.window)
}

func (rl *RateLimiter) pruneLocked(key string) []time.Time {
	requests, exists := rl.requests[key]
	if !exists {
		return nil
	}
	windowStart := rl.now().Add(-rl.window)
	valid := requests[:0]
	for _, t := range requests {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(rl.requests, key)
		return nil
	}
	rl.requests[key] = valid
	return valid
}
