package app

import (
	cfgpkg "github.com/taoyao-code/evo-gateway/internal/config"
	"github.com/taoyao-code/evo-gateway/internal/health"
	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	redisstorage "github.com/taoyao-code/evo-gateway/internal/storage/redis"
	"go.uber.org/zap"
)

// NewRedisClient 创建Redis客户端，未启用时返回 nil
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enable {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}

// NewRedisPublisher 创建测量发布下游
func NewRedisPublisher(client *redisstorage.Client, cfg cfgpkg.RedisConfig) *redisstorage.Publisher {
	return redisstorage.NewPublisher(client, cfg.KeyPrefix, cfg.LatestTTL)
}

// AddRedisChecker 添加Redis检查器到聚合器，同时检查当前型号的最新测量键
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client, pub *redisstorage.Publisher, model evo.Model) {
	if redisClient == nil {
		return
	}
	latestKey := ""
	if pub != nil {
		latestKey = pub.LatestKey(model)
	}
	aggregator.AddChecker(health.NewRedisChecker(redisClient, latestKey))
}
