package health

import (
	"context"
	"fmt"
	"time"

	redisstorage "github.com/taoyao-code/evo-gateway/internal/storage/redis"
)

// RedisChecker 测量发布通道健康检查
type RedisChecker struct {
	client    *redisstorage.Client
	latestKey string // 为空时不检查最新测量
}

// NewRedisChecker 创建Redis健康检查器；latestKey 为当前型号的最新测量键
func NewRedisChecker(client *redisstorage.Client, latestKey string) *RedisChecker {
	return &RedisChecker{client: client, latestKey: latestKey}
}

// Name 返回检查器名称
func (c *RedisChecker) Name() string {
	return "redis"
}

// Check 执行健康检查。最新测量键缺失只记录在详情中，采集停止时键会自然过期。
func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	if err := c.client.HealthCheck(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}

	stats := c.client.PoolStats()
	details := map[string]interface{}{
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"timeouts":    stats.Timeouts,
	}

	status, message := StatusHealthy, "ok"
	if stats.Timeouts > 0 && stats.Timeouts >= stats.Hits {
		status, message = StatusDegraded, "connection pool timeouts"
	}

	if c.latestKey != "" {
		ttl, err := c.client.PTTL(ctx, c.latestKey).Result()
		switch {
		case err != nil:
			status, message = StatusDegraded, fmt.Sprintf("read latest key: %v", err)
		case ttl == -2: // 键不存在
			details["latest_present"] = false
		default:
			details["latest_present"] = true
			details["latest_ttl"] = ttl.String()
		}
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
