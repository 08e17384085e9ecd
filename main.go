package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/stepacool/cursor-hackathon-submission/config"
	"github.com/stepacool/cursor-hackathon-submission/controllers"
	"github.com/stepacool/cursor-hackathon-submission/database"
	"github.com/stepacool/cursor-hackathon-submission/events"
	"github.com/stepacool/cursor-hackathon-submission/middleware"
	"github.com/stepacool/cursor-hackathon-submission/services"
	"github.com/stepacool/cursor-hackathon-submission/utils"
)

func main() {
	// Инициализируем конфигурацию
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	closeLogs, err := utils.InitLoggers(cfg.Log.Dir, cfg.Log.Debug)
	if err != nil {
		log.Fatalf("Ошибка инициализации логов: %v", err)
	}
	defer closeLogs()

	// Инициализируем подключение к базе данных
	db, err := database.Connect(cfg)
	if err != nil {
		utils.LogError("Ошибка подключения к базе данных: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	metrics := utils.GetMetrics()
	repo := database.NewRepository(db.DB, cfg.DB.LockTimeout)

	limiter, closeLimiter := newTransferLimiter(cfg)
	defer closeLimiter()

	publisher := newPublisher(cfg)
	defer publisher.Close()

	var emailService *services.EmailService
	if cfg.SMTP.Enabled {
		emailService = services.NewEmailService(cfg.SMTP)
	}

	// Инициализируем сервисы и контроллеры
	bankController := controllers.NewBankController(
		services.NewBankService(repo, cfg.Transfer.ReferenceRetries),
		services.NewTransferService(repo, services.TransferOptions{
			Timeout:          cfg.Transfer.Timeout,
			ReferenceRetries: cfg.Transfer.ReferenceRetries,
			Metrics:          metrics,
		}),
		services.NewLifecycleService(repo, metrics),
		services.NewStatementService(repo),
		services.NewNotificationService(publisher, emailService),
		limiter,
	)

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	var schedulerDone <-chan struct{}
	if cfg.OTP.SweepInterval > 0 {
		schedulerDone = services.NewOTPSchedulerService(repo, cfg.OTP.SweepInterval).Start(schedulerCtx)
	}

	// Создаем роутер
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.RecoverMiddleware)

	// Защищенные маршруты
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.LoggingMiddleware(metrics))
	protected.Use(middleware.AuthMiddleware([]byte(cfg.JWT.SecretKey)))
	bankController.RegisterRoutes(protected)

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	servers := []*http.Server{apiServer}
	if cfg.Ops.Port > 0 {
		gin.SetMode(gin.ReleaseMode)
		ops := controllers.NewOpsController(db, metrics)
		servers = append(servers, &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Ops.Port),
			Handler:      controllers.NewOpsRouter(ops, cfg.Ops.Token, utils.NewRateLimiter(60, time.Minute)),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		go func() {
			utils.LogInfo("Сервер запущен на %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s: %w", srv.Addr, err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		utils.LogInfo("Получен сигнал %s, останавливаем серверы", sig)
	case err := <-errCh:
		utils.LogError("Ошибка запуска сервера: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			utils.LogError("Ошибка остановки сервера %s: %v", srv.Addr, err)
		}
	}
	stopScheduler()
	if cfg.OTP.SweepInterval > 0 {
		<-schedulerDone
	}
	utils.LogInfo("Серверы остановлены")
}

// newTransferLimiter использует Redis, если он настроен, иначе лимит в памяти процесса
func newTransferLimiter(cfg *config.Config) (utils.Limiter, func()) {
	limit := cfg.Transfer.RateLimitPerMinute
	if limit <= 0 {
		return nil, func() {}
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err == nil {
			client := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err = client.Ping(ctx).Err()
			cancel()
			if err == nil {
				utils.LogInfo("Лимит переводов хранится в Redis")
				limiter := utils.NewRedisRateLimiter(client, cfg.Redis.Prefix, "transfer", limit, time.Minute)
				return limiter, func() { client.Close() }
			}
			client.Close()
		}
		utils.LogError("Redis недоступен, используем лимит в памяти: %v", err)
	}

	return utils.NewRateLimiter(limit, time.Minute), func() {}
}

// newPublisher подключается к RabbitMQ, если он настроен
func newPublisher(cfg *config.Config) events.Publisher {
	if cfg.RabbitMQ.URL == "" {
		return events.FallbackPublisher{}
	}
	var signingKey []byte
	if cfg.RabbitMQ.SigningKey != "" {
		key, err := utils.DeriveKey([]byte(cfg.RabbitMQ.SigningKey), "bank-events", 32)
		if err != nil {
			utils.LogError("не удалось получить ключ подписи событий: %v", err)
			return events.FallbackPublisher{}
		}
		signingKey = key
	}
	producer, err := events.NewEventProducer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, signingKey)
	if err != nil {
		utils.LogError("RabbitMQ недоступен, события не публикуются: %v", err)
		return events.FallbackPublisher{}
	}
	return producer
}
