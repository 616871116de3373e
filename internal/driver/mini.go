package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"go.uber.org/zap"
)

// miniRelearnAfter 像素模式已知时，连续这么多帧校验失败后改回试探读取
const miniRelearnAfter = 3

// Mini 单点/多点测距：'T' 帧头，长度取决于像素模式
type Mini struct {
	*base
	pixel      atomic.Int32
	badFrames  atomic.Int32 // 按已知模式读取时连续失败的帧数
	startPixel evo.PixelMode
	band       string
}

func rangeBandCommand(band string) (string, error) {
	switch strings.ToLower(band) {
	case "":
		return "", nil
	case "short":
		return evo.CmdShortRange, nil
	case "long":
		return evo.CmdLongRange, nil
	}
	return "", fmt.Errorf("unsupported range band %q (want short or long)", band)
}

// PixelMode 当前按其读帧的像素模式：来自被确认的命令或通过校验的试探帧长，
// 未知时为 PixelUnknown
func (s *Mini) PixelMode() evo.PixelMode { return evo.PixelMode(s.pixel.Load()) }

func (s *Mini) setPixelMode(mode evo.PixelMode, reason string) {
	s.badFrames.Store(0)
	old := evo.PixelMode(s.pixel.Swap(int32(mode)))
	if old != mode {
		s.log.Info("pixel mode changed",
			zap.Stringer("from", old),
			zap.Stringer("to", mode),
			zap.String("reason", reason))
	}
}

// onCommandResult 像素模式命令被确认后记录新模式。
// NACK 表示设备未切换，保留原模式；其他失败无法判断设备是否已切换，改回试探读取。
func (s *Mini) onCommandResult(cmd evo.Command, err error) {
	mode := cmd.PixelMode()
	switch {
	case mode == evo.PixelUnknown:
	case err == nil:
		s.setPixelMode(mode, "ack")
	case errors.Is(err, evo.ErrNackReceived), errors.Is(err, evo.ErrLockTimeout):
	default:
		s.setPixelMode(evo.PixelUnknown, "command outcome unknown")
	}
}

// Activate 二进制输出，然后按配置设置量程与像素模式
func (s *Mini) Activate(ctx context.Context) error {
	names := []string{evo.CmdBinaryMode}
	if s.band != "" {
		names = append(names, s.band)
	}
	if s.startPixel != evo.PixelUnknown {
		cmd, err := evo.PixelCommand(s.startPixel)
		if err != nil {
			return err
		}
		names = append(names, cmd.Name())
	}
	return s.activateWith(ctx, names...)
}

// Deactivate Mini 没有停止输出的命令
func (s *Mini) Deactivate(context.Context) error { return nil }

// Next 实现 Sensor。像素模式已知时按确定长度读取，否则依次试探 4/6/10 字节，
// 试探成功的长度即为新的像素模式。
func (s *Mini) Next(ctx context.Context) (*evo.Measurement, error) {
	return s.readFrame(ctx, func() (*evo.Measurement, int, error) {
		frame, discarded, err := s.readMiniFrame()
		if err != nil {
			return nil, discarded, err
		}
		raw, meters, err := evo.DecodeMini(frame)
		if err != nil {
			return nil, discarded, err
		}
		return evo.NewMiniMeasurement(raw, meters), discarded, nil
	})
}

func (s *Mini) readMiniFrame() ([]byte, int, error) {
	mode := s.PixelMode()
	if mode == evo.PixelUnknown {
		frame, discarded, err := s.sync.ProbeVariableFrame(evo.KindMini, evo.MiniHeader, evo.MiniProbeSizes, evo.VerifyMiniFrame)
		if err == nil {
			s.setPixelMode(evo.MiniPixelModeForSize(len(frame)), "probe")
		}
		return frame, discarded, err
	}

	frame, discarded, err := s.sync.ReadHeaderMatchedFrame(evo.KindMini, evo.MiniFrameSize(mode), []byte{evo.MiniHeader})
	if err == nil {
		err = evo.VerifyMiniFrame(frame)
	}
	switch {
	case err == nil:
		s.badFrames.Store(0)
	case errors.Is(err, evo.ErrChecksumMismatch), errors.Is(err, evo.ErrInvalidFrameLength):
		if n := s.badFrames.Add(1); n >= miniRelearnAfter {
			s.log.Warn("frames do not match pixel mode, probing",
				zap.Stringer("pixel_mode", mode),
				zap.Int32("failures", n))
			s.setPixelMode(evo.PixelUnknown, "frame mismatch")
		}
	}
	return frame, discarded, err
}

// Stats 附带像素模式
func (s *Mini) Stats() Stats {
	st := s.base.Stats()
	st.PixelMode = s.PixelMode().String()
	return st
}
