package gormrepo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taoyao-code/evo-gateway/internal/storage"
	"github.com/taoyao-code/evo-gateway/internal/storage/models"
)

// 单次查询返回条数上限
const maxLimit = 1000

// Repository 基于 GORM 的 HistoryRepo 实现。
// 使用 isTx 标记区分事务上下文，避免嵌套事务重复 Begin/Commit。
type Repository struct {
	db   *gorm.DB
	isTx bool
}

var _ storage.HistoryRepo = (*Repository)(nil)

// New 返回一个使用给定 *gorm.DB 的 Repository。
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx 复用现有事务或开启新事务执行 fn。
func (r *Repository) WithTx(ctx context.Context, fn func(*Repository) error) error {
	if r.isTx {
		return fn(r)
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	child := &Repository{db: tx, isTx: true}
	if err := fn(child); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// SaveMeasurement 插入一条测量记录
func (r *Repository) SaveMeasurement(ctx context.Context, rec *models.Measurement) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// SaveMeasurements 在单个事务中批量插入
func (r *Repository) SaveMeasurements(ctx context.Context, recs []*models.Measurement) error {
	return r.WithTx(ctx, func(tx *Repository) error {
		for _, rec := range recs {
			if err := tx.SaveMeasurement(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecentMeasurements 按采集时间倒序查询
func (r *Repository) RecentMeasurements(ctx context.Context, model string, limit int) ([]models.Measurement, error) {
	q := r.db.WithContext(ctx).Order("taken_at DESC").Limit(clampLimit(limit))
	if model != "" {
		q = q.Where("model = ?", model)
	}
	var out []models.Measurement
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SaveCommandLog 插入命令交互记录；同一交互重复写入时忽略。
func (r *Repository) SaveCommandLog(ctx context.Context, rec *models.CommandLog) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "exchange_id"}},
			DoNothing: true,
		}).
		Create(rec).Error
}

// RecentCommandLogs 按发送时间倒序查询
func (r *Repository) RecentCommandLogs(ctx context.Context, limit int) ([]models.CommandLog, error) {
	var out []models.CommandLog
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(clampLimit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
