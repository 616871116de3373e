package driver

import (
	"errors"
	"time"

	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"github.com/taoyao-code/evo-gateway/internal/serialport"
)

// 帧读取结果
const (
	ResultOK         = "ok"
	ResultLength     = "invalid_length"
	ResultChecksum   = "checksum_mismatch"
	ResultSyncLost   = "sync_lost"
	ResultDegenerate = "degenerate"
	ResultHeader     = "unexpected_header"
	ResultTimeout    = "timeout"
	ResultNack       = "nack"
	ResultError      = "error"
)

// Observer 驱动层指标回调，由 metrics.SensorMetrics 实现
type Observer interface {
	FrameResult(model evo.Model, result string)
	BytesDiscarded(model evo.Model, n int)
	CommandResult(model evo.Model, command, result string, elapsed time.Duration)
	LockTimeout(model evo.Model, op string)
}

type nopObserver struct{}

func (nopObserver) FrameResult(evo.Model, string)                          {}
func (nopObserver) BytesDiscarded(evo.Model, int)                          {}
func (nopObserver) CommandResult(evo.Model, string, string, time.Duration) {}
func (nopObserver) LockTimeout(evo.Model, string)                          {}

// ResultOf 把错误归类为指标标签
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, evo.ErrChecksumMismatch):
		return ResultChecksum
	case errors.Is(err, evo.ErrFrameSyncLost):
		return ResultSyncLost
	case errors.Is(err, evo.ErrDegenerateFrame):
		return ResultDegenerate
	case errors.Is(err, evo.ErrUnexpectedHeader):
		return ResultHeader
	case errors.Is(err, evo.ErrInvalidFrameLength):
		return ResultLength
	case errors.Is(err, evo.ErrAckTimeout), errors.Is(err, evo.ErrLockTimeout), errors.Is(err, serialport.ErrReadTimeout):
		return ResultTimeout
	case errors.Is(err, evo.ErrNackReceived):
		return ResultNack
	default:
		return ResultError
	}
}
