package app

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	cfgpkg "github.com/taoyao-code/evo-gateway/internal/config"
	"github.com/taoyao-code/evo-gateway/internal/migrate"
	pgstorage "github.com/taoyao-code/evo-gateway/internal/storage/pg"
	"go.uber.org/zap"
)

// Database PostgreSQL 连接集合：pgx 连接池用于迁移与健康检查，gorm 用于历史读写
type Database struct {
	Pool *pgxpool.Pool
	Gorm *gorm.DB
	sql  *sql.DB
}

// Close 关闭数据库连接
func (d *Database) Close() {
	if d.sql != nil {
		_ = d.sql.Close()
	}
	d.Pool.Close()
}

// ConnectDBAndMigrate 建立数据库连接并执行迁移
func ConnectDBAndMigrate(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*Database, error) {
	dbpool, err := pgstorage.NewPool(ctx, cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime, log)
	if err != nil {
		log.Error("db connect error", zap.Error(err))
		return nil, err
	}
	applied, err := (migrate.Runner{Dir: cfg.MigrationsDir, Logger: log}).Up(ctx, dbpool)
	if err != nil {
		log.Error("db migrate error", zap.Error(err))
		dbpool.Close()
		return nil, err
	}
	log.Info("db migrations applied", zap.Int("count", applied))

	gdb, sqlDB, err := pgstorage.OpenGorm(dbpool)
	if err != nil {
		dbpool.Close()
		return nil, err
	}
	return &Database{Pool: dbpool, Gorm: gdb, sql: sqlDB}, nil
}
