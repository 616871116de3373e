package pg

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPgxZapLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		level tracelog.LogLevel
		want  zapcore.Level
		msg   string
	}{
		{"语句追踪", tracelog.LogLevelTrace, zapcore.DebugLevel, "[SQL] Query"},
		{"调试", tracelog.LogLevelDebug, zapcore.DebugLevel, "Query"},
		{"信息", tracelog.LogLevelInfo, zapcore.InfoLevel, "Query"},
		{"警告", tracelog.LogLevelWarn, zapcore.WarnLevel, "Query"},
		{"错误", tracelog.LogLevelError, zapcore.ErrorLevel, "Query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			l := &pgxZapLogger{logger: zap.New(core)}
			l.Log(context.Background(), tt.level, "Query", map[string]interface{}{"sql": "SELECT 1"})

			entries := logs.All()
			if assert.Len(t, entries, 1) {
				assert.Equal(t, tt.want, entries[0].Level)
				assert.Equal(t, tt.msg, entries[0].Message)
				assert.Equal(t, "SELECT 1", entries[0].ContextMap()["sql"])
			}
		})
	}
}

func TestNewPool_InvalidDSN(t *testing.T) {
	_, err := NewPool(context.Background(), "://bad dsn", 0, 0, 0, nil)
	assert.Error(t, err)
}
