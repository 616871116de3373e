package driver

import (
	"context"

	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
)

// Thermal 32×32 热成像：以小端字13为帧头的2070字节帧
type Thermal struct {
	*base
	flushAfterFrame bool
}

// Activate 清空输入后发送输出开启命令
func (s *Thermal) Activate(ctx context.Context) error {
	return s.activateWith(ctx, evo.CmdStreamStart)
}

// Deactivate 发送输出关闭命令
func (s *Thermal) Deactivate(ctx context.Context) error {
	_, err := s.Send(ctx, evo.CmdStreamStop)
	return err
}

// Next 实现 Sensor。flushAfterFrame 开启时，每取得一帧有效数据后丢弃积压字节，
// 下一次读取总是从最新的帧开始。
func (s *Thermal) Next(ctx context.Context) (*evo.Measurement, error) {
	return s.readFrame(ctx, func() (*evo.Measurement, int, error) {
		frame, discarded, err := s.sync.ReadHeaderMatchedFrame(evo.KindThermal, evo.ThermalFrameSize, evo.ThermalHeader)
		if err != nil {
			return nil, discarded, err
		}
		if err := evo.VerifyThermalFrame(frame); err != nil {
			return nil, discarded, err
		}
		img, err := evo.DecodeThermal(frame)
		if err != nil {
			return nil, discarded, err
		}
		if s.flushAfterFrame {
			if err := s.ch.FlushInput(); err != nil {
				return nil, discarded, err
			}
		}
		return evo.NewThermalMeasurement(img), discarded, nil
	})
}
