package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stepacool/cursor-hackathon-submission/middleware"
	"github.com/stepacool/cursor-hackathon-submission/utils"
)

// Pinger - проверка доступности базы (database.Database)
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsController обслуживает /healthz и /metrics
type OpsController struct {
	db      Pinger
	metrics *utils.Metrics
	started time.Time
}

func NewOpsController(db Pinger, metrics *utils.Metrics) *OpsController {
	if metrics == nil {
		metrics = utils.GetMetrics()
	}
	return &OpsController{db: db, metrics: metrics, started: time.Now()}
}

// NewOpsRouter собирает gin-роутер служебного сервера
func NewOpsRouter(c *OpsController, token string, limiter *utils.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(), middleware.Logger())
	if limiter != nil {
		router.Use(middleware.OpsRateLimit(limiter))
	}
	router.Use(middleware.OpsAuth(token))

	router.GET("/healthz", c.Health)
	router.GET("/metrics", c.Metrics)
	return router
}

// Health проверяет соединение с базой
func (c *OpsController) Health(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if err := c.db.Ping(pingCtx); err != nil {
		utils.LogError("health check failed: %v", err)
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "database unavailable",
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"status":         "ok",
			"uptime_seconds": int64(time.Since(c.started).Seconds()),
		},
	})
}

// Metrics возвращает снимок метрик процесса
func (c *OpsController) Metrics(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    c.metrics.GetMetricsSnapshot(),
	})
}
