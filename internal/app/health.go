package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taoyao-code/evo-gateway/internal/health"
	"github.com/taoyao-code/evo-gateway/internal/stream"
)

// NewHealthAggregator 创建健康检查聚合器，传感器检查器始终存在
func NewHealthAggregator(runner *stream.Runner, staleAfter time.Duration) *health.Aggregator {
	return health.NewAggregator(
		health.NewSensorChecker(runner, staleAfter),
	)
}

// AddDatabaseChecker 添加数据库检查器到聚合器
func AddDatabaseChecker(aggregator *health.Aggregator, dbpool *pgxpool.Pool) {
	if dbpool != nil {
		aggregator.AddChecker(health.NewDatabaseChecker(dbpool))
	}
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}
