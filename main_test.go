package main

import (
	"testing"

	"github.com/stepacool/cursor-hackathon-submission/config"
	"github.com/stepacool/cursor-hackathon-submission/events"
	"github.com/stepacool/cursor-hackathon-submission/utils"
)

func TestNewTransferLimiterFallsBackToMemory(t *testing.T) {
	cfg := &config.Config{}
	cfg.Transfer.RateLimitPerMinute = 5
	cfg.Redis.URL = "not-a-redis-url"

	limiter, closeFn := newTransferLimiter(cfg)
	defer closeFn()

	// Проверяем, что выбран лимит в памяти
	if _, ok := limiter.(*utils.RateLimiter); !ok {
		t.Fatalf("limiter = %T, want *utils.RateLimiter", limiter)
	}
	if limiter.Limit() != 5 {
		t.Errorf("limit = %d, want 5", limiter.Limit())
	}
}

func TestNewTransferLimiterDisabled(t *testing.T) {
	cfg := &config.Config{}

	limiter, closeFn := newTransferLimiter(cfg)
	defer closeFn()

	if limiter != nil {
		t.Errorf("limiter = %T, want nil when limit is 0", limiter)
	}
}

func TestNewPublisherWithoutBroker(t *testing.T) {
	cfg := &config.Config{}

	publisher := newPublisher(cfg)
	defer publisher.Close()

	if _, ok := publisher.(events.FallbackPublisher); !ok {
		t.Errorf("publisher = %T, want events.FallbackPublisher", publisher)
	}
}
