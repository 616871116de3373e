package driver

import (
	"context"
	"fmt"

	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
)

// MultiFlex 只支持输出模式配置，应答为5字节 "RE" 帧
type MultiFlex struct {
	*base
}

// Activate 清空输入后切换到二进制输出
func (s *MultiFlex) Activate(ctx context.Context) error {
	return s.activateWith(ctx, evo.CmdBinaryMode)
}

// Deactivate 无停止命令
func (s *MultiFlex) Deactivate(context.Context) error { return nil }

// Next 数据流格式不在支持范围内
func (s *MultiFlex) Next(context.Context) (*evo.Measurement, error) {
	return nil, fmt.Errorf("%w: %s", evo.ErrStreamingUnsupported, s.model)
}
