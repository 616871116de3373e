package storage

import (
	"context"

	"github.com/taoyao-code/evo-gateway/internal/driver"
	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"github.com/taoyao-code/evo-gateway/internal/storage/models"
)

// HistoryRepo 测量与命令历史的存储抽象，PostgreSQL 与本地 bbolt 各有一份实现。
// 查询结果按时间倒序返回。
type HistoryRepo interface {
	SaveMeasurement(ctx context.Context, rec *models.Measurement) error
	// RecentMeasurements model 为空时不过滤型号
	RecentMeasurements(ctx context.Context, model string, limit int) ([]models.Measurement, error)
	SaveCommandLog(ctx context.Context, rec *models.CommandLog) error
	RecentCommandLogs(ctx context.Context, limit int) ([]models.CommandLog, error)
}

// Sink 把 HistoryRepo 接入采集发布链路
type Sink struct {
	name string
	repo HistoryRepo
}

// NewSink 创建历史存储下游
func NewSink(name string, repo HistoryRepo) *Sink {
	return &Sink{name: name, repo: repo}
}

// Name 下游名称
func (s *Sink) Name() string { return s.name }

// Publish 保存一条测量
func (s *Sink) Publish(ctx context.Context, m *evo.Measurement) error {
	rec, err := models.FromMeasurement(m)
	if err != nil {
		return err
	}
	return s.repo.SaveMeasurement(ctx, rec)
}

// RecordCommand 保存一次命令交互
func (s *Sink) RecordCommand(ctx context.Context, ex *driver.Exchange) error {
	return s.repo.SaveCommandLog(ctx, models.FromExchange(ex))
}
