package evo

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Model 传感器型号
type Model string

const (
	ModelEvo64px    Model = "evo64px"
	ModelEvoMini    Model = "evomini"
	ModelEvoThermal Model = "evothermal"
	ModelMultiFlex  Model = "multiflex"
)

// ParseModel 解析配置中的型号名称（大小写、连字符不敏感）
func ParseModel(s string) (Model, error) {
	n := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	switch n {
	case "evo64px", "64px":
		return ModelEvo64px, nil
	case "evomini", "mini":
		return ModelEvoMini, nil
	case "evothermal", "thermal", "evothermal33", "evothermal90":
		return ModelEvoThermal, nil
	case "multiflex", "terarangermultiflex":
		return ModelMultiFlex, nil
	}
	return "", fmt.Errorf("unsupported sensor model %q", s)
}

// FrameKind 帧类型
type FrameKind string

const (
	KindRange     FrameKind = "range"
	KindMini      FrameKind = "mini"
	KindThermal   FrameKind = "thermal"
	KindAck       FrameKind = "ack"
	KindMultiFlex FrameKind = "multiflex_ack"
)

// 64px 测距帧：0x11 + 64×2字节 + 保留区 + 8字节半字节CRC + '\n'
const (
	RangeFrameSize   = 269
	RangeHeader      = 0x11
	RangeRows        = 8
	RangeCols        = 8
	RangePixels      = RangeRows * RangeCols
	LineDelimiter    = '\n'
	rangeCRCOffset   = RangeFrameSize - 9
	rangeValueOffset = 1
)

// Mini 测距帧：'T' + N×16位 + CRC-8
const (
	MiniHeader = 'T'
)

// 热成像帧：2字节帧头(13) + 1034个16位字
const (
	ThermalFrameSize   = 2070
	ThermalRows        = 32
	ThermalCols        = 32
	ThermalPixels      = ThermalRows * ThermalCols
	ThermalHeaderWord  = 13
	thermalHeaderSize  = 2
	thermalWords       = 1034
	thermalAmbientWord = 1024
	thermalCRCHighWord = 1032
	thermalCRCLowWord  = 1033
	thermalCRCCoverage = thermalCRCHighWord * 2
	thermalBodySize    = thermalWords * 2
)

// ThermalHeader 热成像帧头的线上字节
var ThermalHeader = []byte{ThermalHeaderWord, 0x00}

// ACK 帧
const (
	AckFrameSize        = 4
	AckHeader64px       = 0x14
	AckHeaderMini       = 0x12
	MultiFlexAckSize    = 5
	MultiFlexAckStatusN = 0xFF
)

// MultiFlexAckHeader MultiFlex 应答以 "RE" 开头
var MultiFlexAckHeader = []byte{'R', 'E'}

// PixelMode Mini 的像素模式，决定每帧测距值个数
type PixelMode int

const (
	PixelUnknown  PixelMode = 0
	PixelSingle   PixelMode = 1
	PixelTwo      PixelMode = 2
	PixelTwoByTwo PixelMode = 4
)

// Count 每帧测距值个数
func (m PixelMode) Count() int { return int(m) }

func (m PixelMode) String() string {
	switch m {
	case PixelSingle:
		return "single"
	case PixelTwo:
		return "two"
	case PixelTwoByTwo:
		return "2x2"
	default:
		return "unknown"
	}
}

// ParsePixelMode 解析配置中的像素模式
func ParsePixelMode(s string) (PixelMode, error) {
	switch strings.ToLower(s) {
	case "single", "1":
		return PixelSingle, nil
	case "two", "2":
		return PixelTwo, nil
	case "2x2", "twobytwo", "4":
		return PixelTwoByTwo, nil
	case "":
		return PixelUnknown, nil
	}
	return PixelUnknown, fmt.Errorf("unsupported pixel mode %q", s)
}

// MiniFrameSize 按像素模式返回Mini帧长度
func MiniFrameSize(m PixelMode) int {
	return 1 + 2*m.Count() + 1
}

// MiniPixelModeForSize 由Mini帧长度反推像素模式，无对应模式时返回 PixelUnknown
func MiniPixelModeForSize(n int) PixelMode {
	for _, m := range []PixelMode{PixelSingle, PixelTwo, PixelTwoByTwo} {
		if MiniFrameSize(m) == n {
			return m
		}
	}
	return PixelUnknown
}

// MiniProbeSizes 未知像素模式时依次尝试的帧长度
var MiniProbeSizes = []int{
	MiniFrameSize(PixelSingle),
	MiniFrameSize(PixelTwo),
	MiniFrameSize(PixelTwoByTwo),
}

// MaskWidth 深度值有效位宽（因固件版本而异）
type MaskWidth uint8

const (
	Mask12Bit MaskWidth = 12
	Mask14Bit MaskWidth = 14
)

// Mask 返回位宽对应的掩码
func (w MaskWidth) Mask() uint16 {
	return uint16(1)<<uint(w) - 1
}

// ParseMaskWidth 只接受12或14
func ParseMaskWidth(bits int) (MaskWidth, error) {
	switch bits {
	case 12:
		return Mask12Bit, nil
	case 14:
		return Mask14Bit, nil
	}
	return 0, fmt.Errorf("unsupported range mask width %d (want 12 or 14)", bits)
}

// thermalWord 读取热成像数据区中第 i 个16位字（小端，设备原生字节序）
func thermalWord(body []byte, i int) uint16 {
	return binary.LittleEndian.Uint16(body[2*i:])
}

func putThermalWord(body []byte, i int, v uint16) {
	binary.LittleEndian.PutUint16(body[2*i:], v)
}
