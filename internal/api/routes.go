package api

import (
	"github.com/gin-gonic/gin"
	"github.com/taoyao-code/evo-gateway/internal/api/middleware"
	"go.uber.org/zap"
)

// RouteConfig 控制面路由配置
type RouteConfig struct {
	Auth      middleware.AuthConfig
	RateLimit middleware.RateLimitConfig
}

// RegisterRoutes 注册传感器控制面路由
func RegisterRoutes(r gin.IRouter, h *SensorHandler, cfg RouteConfig, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	g := r.Group("/api/v1")
	g.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit), logger))
	if cfg.Auth.Enabled {
		g.Use(middleware.APIKeyAuth(cfg.Auth, logger))
		logger.Info("api authentication enabled", zap.Int("keys", len(cfg.Auth.APIKeys)))
	} else {
		logger.Warn("api authentication disabled, control endpoints are open")
	}

	g.GET("/sensor", h.GetSensor)
	g.GET("/measurements/latest", h.LatestMeasurement)
	g.GET("/measurements/history", h.MeasurementHistory)
	g.GET("/commands", h.ListCommands)
	g.GET("/commands/history", h.CommandHistory)
	g.POST("/commands/:name", h.SendCommand)
	g.POST("/stream/start", h.StartStream)
	g.POST("/stream/stop", h.StopStream)

	logger.Info("sensor api routes registered",
		zap.Float64("rate_limit", cfg.RateLimit.RatePerSecond),
		zap.Int("rate_burst", cfg.RateLimit.Burst))
}
