package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taoyao-code/evo-gateway/internal/api"
	"github.com/taoyao-code/evo-gateway/internal/api/middleware"
	"github.com/taoyao-code/evo-gateway/internal/app"
	cfgpkg "github.com/taoyao-code/evo-gateway/internal/config"
	"github.com/taoyao-code/evo-gateway/internal/metrics"
	"github.com/taoyao-code/evo-gateway/internal/stream"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Run 统一启动流程，收到 SIGINT/SIGTERM 后优雅退出
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Serve(ctx, cfg, log)
}

// Serve 启动网关直到 ctx 取消
func Serve(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting evo gateway",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env))

	// ========== 阶段1: 传感器通道与下游（失败直接返回）==========
	gw, err := app.NewGateway(ctx, cfg, log)
	if err != nil {
		log.Error("gateway initialization failed", zap.Error(err))
		return err
	}
	defer gw.Close()

	// ========== 阶段2: 健康检查 ==========
	healthAgg := app.NewHealthAggregator(gw.Runner, 0)
	if gw.DB != nil {
		app.AddDatabaseChecker(healthAgg, gw.DB.Pool)
	}
	app.AddRedisChecker(healthAgg, gw.Redis, gw.RedisPub, gw.Sensor.Model())
	log.Info("health aggregator initialized")

	// ========== 阶段3: HTTP 控制面（非阻塞）==========
	readyFn := func() bool {
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return healthAgg.Ready(rctx)
	}
	httpSrv := app.NewHTTPServer(cfg, metrics.Handler(gw.Registry), readyFn, log)
	httpSrv.Register(func(r *gin.Engine) {
		handler := api.NewSensorHandler(gw.Runner, gw.History, log)
		api.RegisterRoutes(r, handler, api.RouteConfig{
			Auth: middleware.AuthConfig{
				APIKeys: cfg.API.APIKeys,
				Enabled: cfg.API.AuthEnable,
			},
			RateLimit: middleware.RateLimitConfig{
				RatePerSecond: cfg.API.RateLimit,
				Burst:         cfg.API.RateBurst,
			},
		}, log)
		app.RegisterHealthRoutes(r, healthAgg)
	})

	httpErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			httpErr <- err
		}
	}()
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段4: 采集循环 ==========
	if cfg.Stream.AutoStart {
		if err := gw.Runner.Start(ctx); err != nil {
			log.Error("stream start failed", zap.Error(err))
		}
	} else {
		log.Info("stream auto start disabled, waiting for api")
	}

	// ========== 阶段5: 等待关闭信号 ==========
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, gracefully shutting down...")
	case err = <-httpErr:
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if e := gw.Runner.Stop(sctx); e != nil && !errors.Is(e, stream.ErrNotRunning) {
		log.Warn("stream stop failed", zap.Error(e))
	}
	log.Info("stream stopped")

	_ = httpSrv.Shutdown(sctx)
	log.Info("http server stopped")

	log.Info("shutdown complete")
	return err
}
