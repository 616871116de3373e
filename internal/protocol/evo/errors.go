package evo

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFrameLength 帧长度与期望不符
	ErrInvalidFrameLength = errors.New("invalid frame length")
	// ErrChecksumMismatch CRC校验失败
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrFrameSyncLost 在重试上限内未能同步到完整帧
	ErrFrameSyncLost = errors.New("frame sync lost")
	// ErrAckTimeout 等待ACK头超时（字节数或时间上限）
	ErrAckTimeout = errors.New("ack timeout")
	// ErrNackReceived 设备拒绝命令
	ErrNackReceived = errors.New("nack received")
	// ErrDegenerateFrame 深度帧数值和过小，视为无效帧
	ErrDegenerateFrame = errors.New("degenerate frame")
	// ErrLockTimeout 通道互斥等待超时
	ErrLockTimeout = errors.New("channel lock timeout")
	// ErrUnexpectedHeader 帧头不匹配
	ErrUnexpectedHeader = errors.New("unexpected frame header")
	// ErrStreamingUnsupported 型号不支持连续数据流
	ErrStreamingUnsupported = errors.New("streaming not supported by model")
	// ErrUnknownCommand 型号没有该命令
	ErrUnknownCommand = errors.New("unknown command")
)

// InvalidFrameLengthError 记录实际与期望长度
type InvalidFrameLengthError struct {
	Kind     FrameKind
	Expected int
	Actual   int
}

func (e *InvalidFrameLengthError) Error() string {
	return fmt.Sprintf("invalid %s frame length: got %d bytes, expected %d", e.Kind, e.Actual, e.Expected)
}

func (e *InvalidFrameLengthError) Unwrap() error { return ErrInvalidFrameLength }

// ChecksumError 记录计算值与帧内携带值
type ChecksumError struct {
	Kind     FrameKind
	Algo     string // crc8 | crc32
	Expected uint32 // 帧内携带
	Actual   uint32 // 本地计算
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s %s checksum mismatch: frame carries 0x%08X, computed 0x%08X", e.Kind, e.Algo, e.Expected, e.Actual)
}

func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// NackError 设备对命令回复了非零状态
type NackError struct {
	Command string
	Status  byte
}

func (e *NackError) Error() string {
	return fmt.Sprintf("command %s not acknowledged: status 0x%02X", e.Command, e.Status)
}

func (e *NackError) Unwrap() error { return ErrNackReceived }

// IsRecoverable 判断是否为数据流路径上可就地恢复的错误：
// 记录日志、丢弃当前帧、继续读取下一帧。
func IsRecoverable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidFrameLength),
		errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrFrameSyncLost),
		errors.Is(err, ErrDegenerateFrame),
		errors.Is(err, ErrUnexpectedHeader),
		errors.Is(err, ErrLockTimeout):
		return true
	default:
		return false
	}
}
