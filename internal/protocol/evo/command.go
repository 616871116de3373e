package evo

import (
	"fmt"
	"sort"
)

// 命令名称
const (
	CmdStreamStart   = "stream_start"
	CmdStreamStop    = "stream_stop"
	CmdTextMode      = "text_mode"
	CmdBinaryMode    = "binary_mode"
	CmdSinglePixel   = "single_pixel"
	CmdTwoPixel      = "two_pixel"
	CmdTwoByTwoPixel = "two_by_two_pixel"
	CmdShortRange    = "short_range"
	CmdLongRange     = "long_range"
)

// Command 型号相关的模式设置命令。操作码按线格式逐字节保留，
// 末字节为前面字节的CRC-8。
type Command struct {
	name   string
	model  Model
	opcode []byte
	pixel  PixelMode
	desc   string
}

// Name 命令名称
func (c Command) Name() string { return c.name }

// Model 所属型号
func (c Command) Model() Model { return c.model }

// Opcode 返回操作码副本
func (c Command) Opcode() []byte {
	out := make([]byte, len(c.opcode))
	copy(out, c.opcode)
	return out
}

// PixelMode 若为像素模式命令，返回其设置的模式
func (c Command) PixelMode() PixelMode { return c.pixel }

// Description 命令说明
func (c Command) Description() string { return c.desc }

// Valid 操作码末字节是否为其余字节的CRC-8
func (c Command) Valid() bool {
	n := len(c.opcode)
	return n >= 2 && CRC8(c.opcode[:n-1]) == c.opcode[n-1]
}

func (c Command) String() string {
	return fmt.Sprintf("%s/%s % X", c.model, c.name, c.opcode)
}

var (
	streamStart = []byte{0x00, 0x52, 0x02, 0x01, 0xDF}
	streamStop  = []byte{0x00, 0x52, 0x02, 0x00, 0xD8}
	textMode    = []byte{0x00, 0x11, 0x01, 0x45}
	binaryMode  = []byte{0x00, 0x11, 0x02, 0x4C}
)

var commandTable = map[Model][]Command{
	ModelEvo64px: {
		{name: CmdStreamStart, model: ModelEvo64px, opcode: streamStart, desc: "activate USB VCP output"},
		{name: CmdStreamStop, model: ModelEvo64px, opcode: streamStop, desc: "deactivate USB VCP output"},
	},
	ModelEvoThermal: {
		{name: CmdStreamStart, model: ModelEvoThermal, opcode: streamStart, desc: "activate USB VCP output"},
		{name: CmdStreamStop, model: ModelEvoThermal, opcode: streamStop, desc: "deactivate USB VCP output"},
	},
	ModelEvoMini: {
		{name: CmdTextMode, model: ModelEvoMini, opcode: textMode, desc: "text output"},
		{name: CmdBinaryMode, model: ModelEvoMini, opcode: binaryMode, desc: "binary output"},
		{name: CmdSinglePixel, model: ModelEvoMini, opcode: []byte{0x00, 0x21, 0x01, 0xBC}, pixel: PixelSingle, desc: "single range per frame"},
		{name: CmdTwoByTwoPixel, model: ModelEvoMini, opcode: []byte{0x00, 0x21, 0x02, 0xB5}, pixel: PixelTwoByTwo, desc: "2x2 ranges per frame"},
		{name: CmdTwoPixel, model: ModelEvoMini, opcode: []byte{0x00, 0x21, 0x03, 0xB2}, pixel: PixelTwo, desc: "two ranges per frame"},
		{name: CmdShortRange, model: ModelEvoMini, opcode: []byte{0x00, 0x61, 0x01, 0xE7}, desc: "short range band"},
		{name: CmdLongRange, model: ModelEvoMini, opcode: []byte{0x00, 0x61, 0x03, 0xE9}, desc: "long range band"},
	},
	ModelMultiFlex: {
		{name: CmdTextMode, model: ModelMultiFlex, opcode: textMode, desc: "text output"},
		{name: CmdBinaryMode, model: ModelMultiFlex, opcode: binaryMode, desc: "binary output"},
	},
}

// Commands 列出型号支持的命令（按名称排序）
func Commands(model Model) []Command {
	cmds := append([]Command(nil), commandTable[model]...)
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].name < cmds[j].name })
	return cmds
}

// LookupCommand 按名称查找命令
func LookupCommand(model Model, name string) (Command, error) {
	for _, c := range commandTable[model] {
		if c.name == name {
			return c, nil
		}
	}
	return Command{}, fmt.Errorf("%w: %s has no %q", ErrUnknownCommand, model, name)
}

// PixelCommand 返回设置指定像素模式的命令
func PixelCommand(mode PixelMode) (Command, error) {
	for _, c := range commandTable[ModelEvoMini] {
		if c.pixel == mode && mode != PixelUnknown {
			return c, nil
		}
	}
	return Command{}, fmt.Errorf("%w: no pixel command for mode %s", ErrUnknownCommand, mode)
}
