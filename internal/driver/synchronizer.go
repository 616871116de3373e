package driver

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"github.com/taoyao-code/evo-gateway/internal/serialport"
	"go.uber.org/zap"
)

// SyncConfig 帧同步上限
type SyncConfig struct {
	MaxAttempts int `mapstructure:"maxAttempts"` // 连续长度不符的行数上限
	MaxDiscard  int `mapstructure:"maxDiscard"`  // 寻找帧头时丢弃字节数上限
}

const (
	defaultSyncMaxAttempts = 16
	defaultSyncMaxDiscard  = 8192
)

func (c SyncConfig) withDefaults() SyncConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultSyncMaxAttempts
	}
	if c.MaxDiscard <= 0 {
		c.MaxDiscard = defaultSyncMaxDiscard
	}
	return c
}

// Synchronizer 从可能错位、夹杂噪声的字节流中取出一帧完整的数据。
// 只保证长度与帧头正确，校验和交给调用方。不做并发保护，调用方须持有 Guard。
type Synchronizer struct {
	ch  serialport.Channel
	cfg SyncConfig
	log *zap.Logger

	frames     atomic.Int64
	discarded  atomic.Int64
	mismatches atomic.Int64
	syncLost   atomic.Int64
	probes     atomic.Int64
}

// NewSynchronizer 创建帧同步器
func NewSynchronizer(ch serialport.Channel, cfg SyncConfig, log *zap.Logger) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{ch: ch, cfg: cfg.withDefaults(), log: log.Named("sync")}
}

// ReadFixedFrame 读取以行分隔符结尾的定长帧。
// 长度不符的行丢弃后重读，连续 MaxAttempts 次失败返回 ErrFrameSyncLost。
// 行首混入噪声时，若行尾 length 字节以 header 开头则截取该帧，前缀计入丢弃。
// 返回的丢弃数包含被拒绝的整行（含分隔符）。
func (s *Synchronizer) ReadFixedFrame(kind evo.FrameKind, length int, header byte) ([]byte, int, error) {
	var (
		lastErr   error
		discarded int
	)
	defer func() { s.discarded.Add(int64(discarded)) }()

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		line, err := s.ch.ReadUntil(evo.LineDelimiter)
		if err != nil && !errors.Is(err, serialport.ErrLineTooLong) {
			discarded += len(line)
			return nil, discarded, err
		}

		switch {
		case err == nil && len(line) == length && line[0] == header:
			s.frames.Add(1)
			return line, discarded, nil
		case err == nil && len(line) > length && line[len(line)-length] == header:
			skip := len(line) - length
			discarded += skip
			s.frames.Add(1)
			s.log.Warn("garbage before frame discarded",
				zap.String("kind", string(kind)),
				zap.Int("discarded", discarded))
			return line[skip:], discarded, nil
		}

		discarded += len(line)
		s.mismatches.Add(1)
		if len(line) == length {
			lastErr = fmt.Errorf("%w: %s line starts with 0x%02X", evo.ErrUnexpectedHeader, kind, line[0])
		} else {
			lastErr = &evo.InvalidFrameLengthError{Kind: kind, Expected: length, Actual: len(line)}
		}
		s.log.Warn("line rejected",
			zap.String("kind", string(kind)),
			zap.Int("attempt", attempt),
			zap.Int("length", len(line)),
			zap.Int("expected", length))
	}
	s.syncLost.Add(1)
	return nil, discarded, fmt.Errorf("%w after %d lines: %w", evo.ErrFrameSyncLost, s.cfg.MaxAttempts, lastErr)
}

// ReadHeaderMatchedFrame 逐字节滑动寻找帧头，匹配后读满 length 字节。
// 所有 headers 长度必须相同。返回帧与丢弃的字节数。
func (s *Synchronizer) ReadHeaderMatchedFrame(kind evo.FrameKind, length int, headers ...[]byte) ([]byte, int, error) {
	if len(headers) == 0 || len(headers[0]) == 0 || len(headers[0]) > length {
		return nil, 0, fmt.Errorf("invalid header set for %s frame", kind)
	}
	hlen := len(headers[0])

	window, discarded, err := s.huntHeader(kind, hlen, headers)
	if err != nil {
		return nil, discarded, err
	}

	rest, err := s.ch.ReadExact(length - hlen)
	if err != nil {
		s.mismatches.Add(1)
		return nil, discarded, fmt.Errorf("%s frame truncated after header: %w", kind,
			errors.Join(&evo.InvalidFrameLengthError{Kind: kind, Expected: length, Actual: hlen + len(rest)}, err))
	}
	frame := make([]byte, 0, length)
	frame = append(frame, window...)
	frame = append(frame, rest...)
	s.frames.Add(1)
	return frame, discarded, nil
}

// huntHeader 返回匹配的帧头字节与丢弃数
func (s *Synchronizer) huntHeader(kind evo.FrameKind, hlen int, headers [][]byte) ([]byte, int, error) {
	window, err := s.ch.ReadExact(hlen)
	if err != nil {
		return nil, 0, err
	}
	discarded := 0
	for !matchAny(window, headers) {
		if discarded >= s.cfg.MaxDiscard {
			s.discarded.Add(int64(discarded))
			s.syncLost.Add(1)
			s.log.Warn("header not found",
				zap.String("kind", string(kind)),
				zap.Int("discarded", discarded))
			return nil, discarded, fmt.Errorf("%w: no %s header within %d bytes", evo.ErrFrameSyncLost, kind, discarded)
		}
		b, err := s.ch.ReadExact(1)
		if err != nil {
			s.discarded.Add(int64(discarded))
			return nil, discarded, err
		}
		window = append(window[1:], b[0])
		discarded++
	}
	if discarded > 0 {
		s.discarded.Add(int64(discarded))
		s.log.Warn("garbage before frame discarded",
			zap.String("kind", string(kind)),
			zap.Int("discarded", discarded))
	}
	return window, discarded, nil
}

func matchAny(window []byte, headers [][]byte) bool {
	for _, h := range headers {
		if bytes.Equal(window, h) {
			return true
		}
	}
	return false
}

// ProbeVariableFrame 帧长未知时试探读取：找到单字节帧头后先读到 sizes[0]，
// 校验失败则依次扩展到后续长度，全部失败返回最后一次的校验错误。
func (s *Synchronizer) ProbeVariableFrame(kind evo.FrameKind, header byte, sizes []int, verify func([]byte) error) ([]byte, int, error) {
	if len(sizes) == 0 {
		return nil, 0, fmt.Errorf("no probe sizes for %s frame", kind)
	}
	s.probes.Add(1)

	frame, discarded, err := s.huntHeader(kind, 1, [][]byte{{header}})
	if err != nil {
		return nil, discarded, err
	}
	frame = append([]byte(nil), frame...)

	var lastErr error
	for _, size := range sizes {
		if size <= len(frame) {
			continue
		}
		more, err := s.ch.ReadExact(size - len(frame))
		frame = append(frame, more...)
		if err != nil {
			s.mismatches.Add(1)
			return nil, discarded, fmt.Errorf("%s frame truncated while probing: %w", kind,
				errors.Join(&evo.InvalidFrameLengthError{Kind: kind, Expected: size, Actual: len(frame)}, err))
		}
		if lastErr = verify(frame); lastErr == nil {
			s.frames.Add(1)
			return frame, discarded, nil
		}
		s.log.Debug("probe size rejected",
			zap.String("kind", string(kind)),
			zap.Int("size", size),
			zap.Error(lastErr))
	}
	return nil, discarded, lastErr
}

// Stats 同步统计
func (s *Synchronizer) Stats() SyncStats {
	return SyncStats{
		Frames:           s.frames.Load(),
		DiscardedBytes:   s.discarded.Load(),
		LengthMismatches: s.mismatches.Load(),
		SyncLost:         s.syncLost.Load(),
		Probes:           s.probes.Load(),
	}
}

// SyncStats 帧同步统计信息
type SyncStats struct {
	Frames           int64 `json:"frames"`
	DiscardedBytes   int64 `json:"discarded_bytes"`
	LengthMismatches int64 `json:"length_mismatches"`
	SyncLost         int64 `json:"sync_lost"`
	Probes           int64 `json:"probes"`
}
