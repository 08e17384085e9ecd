package services

import (
	"context"
	"time"

	"github.com/stepacool/cursor-hackathon-submission/database"
	"github.com/stepacool/cursor-hackathon-submission/utils"
)

// OTPSchedulerService периодически переводит просроченные одноразовые коды в EXPIRED
type OTPSchedulerService struct {
	store    database.OTPExpirer
	interval time.Duration
	now      func() time.Time
}

// NewOTPSchedulerService создает новый экземпляр OTPSchedulerService
func NewOTPSchedulerService(store database.OTPExpirer, interval time.Duration) *OTPSchedulerService {
	return &OTPSchedulerService{
		store:    store,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start запускает планировщик и возвращает канал, закрываемый после остановки.
// Планировщик работает до отмены ctx.
func (s *OTPSchedulerService) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.ExpireOnce(ctx); err != nil {
					utils.LogError("Ошибка при обработке просроченных кодов: %v", err)
				}
			}
		}
	}()
	return done
}

// ExpireOnce выполняет один проход и возвращает число обновленных кодов
func (s *OTPSchedulerService) ExpireOnce(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireOTPs(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		utils.LogInfo("Просрочено одноразовых кодов: %d", n)
	}
	return n, nil
}
