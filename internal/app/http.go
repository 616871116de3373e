package app

import (
	"net/http"

	cfgpkg "github.com/taoyao-code/evo-gateway/internal/config"
	"github.com/taoyao-code/evo-gateway/internal/httpserver"
	"go.uber.org/zap"
)

// NewHTTPServer 根据配置创建 HTTP 服务器
func NewHTTPServer(cfg *cfgpkg.Config, metricsHandler http.Handler, readyFn func() bool, log *zap.Logger) *httpserver.Server {
	opts := httpserver.Options{
		Swagger: cfg.API.Swagger,
		ReadyFn: readyFn,
		Logger:  log,
	}
	if cfg.Metrics.Enable {
		opts.MetricsPath = cfg.Metrics.Path
		opts.MetricsHandler = metricsHandler
	}
	return httpserver.New(cfg.HTTP, opts)
}
