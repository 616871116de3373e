package driver

import (
	"context"

	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
)

// Evo64px 8×8 深度传感器：行分隔的269字节帧，启停需显式命令
type Evo64px struct {
	*base
	width  evo.MaskWidth
	minSum int
}

// MaskWidth 深度值位宽
func (s *Evo64px) MaskWidth() evo.MaskWidth { return s.width }

// Activate 清空输入后发送输出开启命令
func (s *Evo64px) Activate(ctx context.Context) error {
	return s.activateWith(ctx, evo.CmdStreamStart)
}

// Deactivate 发送输出关闭命令
func (s *Evo64px) Deactivate(ctx context.Context) error {
	_, err := s.Send(ctx, evo.CmdStreamStop)
	return err
}

// Next 实现 Sensor
func (s *Evo64px) Next(ctx context.Context) (*evo.Measurement, error) {
	return s.readFrame(ctx, func() (*evo.Measurement, int, error) {
		frame, discarded, err := s.sync.ReadFixedFrame(evo.KindRange, evo.RangeFrameSize, evo.RangeHeader)
		if err != nil {
			return nil, discarded, err
		}
		if err := evo.VerifyRangeFrame(frame); err != nil {
			return nil, discarded, err
		}
		grid, err := evo.DecodeRange(frame, s.width)
		if err != nil {
			return nil, discarded, err
		}
		if err := evo.CheckRangeGrid(grid, s.minSum); err != nil {
			return nil, discarded, err
		}
		return evo.NewRangeMeasurement(grid), discarded, nil
	})
}
