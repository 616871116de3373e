package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/taoyao-code/evo-gateway/internal/driver"
	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
)

// 命令交互列表保留条数
const commandListSize = 100

// Publisher 实时分发：最新测量写入 {prefix}latest:{model}（带 TTL），
// 同时 PUBLISH 到 {prefix}measurements:{model} 频道。
type Publisher struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewPublisher 创建 Redis 下游
func NewPublisher(client *Client, prefix string, ttl time.Duration) *Publisher {
	return &Publisher{client: client, prefix: prefix, ttl: ttl}
}

// Name 下游名称
func (p *Publisher) Name() string { return "redis" }

// LatestKey 最新测量的键
func (p *Publisher) LatestKey(model evo.Model) string {
	return p.prefix + "latest:" + string(model)
}

// Channel 测量发布频道
func (p *Publisher) Channel(model evo.Model) string {
	return p.prefix + "measurements:" + string(model)
}

// CommandsKey 命令交互列表的键
func (p *Publisher) CommandsKey() string {
	return p.prefix + "commands"
}

// Publish 写入最新值并发布
func (p *Publisher) Publish(ctx context.Context, m *evo.Measurement) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	pipe := p.client.TxPipeline()
	pipe.Set(ctx, p.LatestKey(m.Model), data, p.ttl)
	pipe.Publish(ctx, p.Channel(m.Model), data)
	_, err = pipe.Exec(ctx)
	return err
}

// RecordCommand 把交互追加到列表头部，只保留最近 commandListSize 条
func (p *Publisher) RecordCommand(ctx context.Context, ex *driver.Exchange) error {
	data, err := json.Marshal(ex)
	if err != nil {
		return err
	}
	pipe := p.client.TxPipeline()
	pipe.LPush(ctx, p.CommandsKey(), data)
	pipe.LTrim(ctx, p.CommandsKey(), 0, commandListSize-1)
	_, err = pipe.Exec(ctx)
	return err
}
