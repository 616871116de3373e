package evo

import (
	"encoding/binary"
	"fmt"
	"math"
)

// RangeGrid 64px 深度矩阵（毫米，行优先）
type RangeGrid [RangeRows][RangeCols]uint16

// Sum 所有像素之和，用于识别退化帧
func (g *RangeGrid) Sum() int {
	s := 0
	for r := range g {
		for c := range g[r] {
			s += int(g[r][c])
		}
	}
	return s
}

// Flat 按行展开为64个值
func (g *RangeGrid) Flat() []uint16 {
	out := make([]uint16, 0, RangePixels)
	for r := range g {
		out = append(out, g[r][:]...)
	}
	return out
}

// DecodeRange 解码64px测距帧。每个值占2字节：
// value = (b[2i-1] << 7) | (b[2i] & 0x7F)，再按固件位宽取掩码。
// 调用方需先通过 VerifyRangeFrame。
func DecodeRange(frame []byte, width MaskWidth) (*RangeGrid, error) {
	if len(frame) != RangeFrameSize {
		return nil, &InvalidFrameLengthError{Kind: KindRange, Expected: RangeFrameSize, Actual: len(frame)}
	}
	if frame[0] != RangeHeader {
		return nil, fmt.Errorf("%w: range frame starts with 0x%02X", ErrUnexpectedHeader, frame[0])
	}
	mask := width.Mask()
	var g RangeGrid
	for i := 1; i <= RangePixels; i++ {
		v := uint16(frame[2*i-1])<<7 | uint16(frame[2*i]&0x7F)
		g[(i-1)/RangeCols][(i-1)%RangeCols] = v & mask
	}
	return &g, nil
}

// CheckRangeGrid 数值和不大于 minSum 的矩阵视为无效帧
func CheckRangeGrid(g *RangeGrid, minSum int) error {
	if sum := g.Sum(); sum <= minSum {
		return fmt.Errorf("%w: pixel sum %d <= %d", ErrDegenerateFrame, sum, minSum)
	}
	return nil
}

// EncodeRangeFrame 按设备线格式生成完整的64px帧（含CRC与行分隔符）。
// 值高于14位的部分被截断；取值使7位分量等于 '\n' 的像素无法在行分隔链路上传输。
func EncodeRangeFrame(values []uint16) []byte {
	frame := make([]byte, RangeFrameSize)
	frame[0] = RangeHeader
	for i := 1; i <= RangePixels && i <= len(values); i++ {
		v := values[i-1] & Mask14Bit.Mask()
		frame[2*i-1] = byte(v >> 7)
		frame[2*i] = byte(v & 0x7F)
	}
	PutNibbleCRC(frame[rangeCRCOffset:], CRC32MPEG2(frame[:rangeCRCOffset]))
	frame[RangeFrameSize-1] = LineDelimiter
	return frame
}

// Mini 测距值的特殊编码
const (
	MiniOverRange  = 65535
	MiniNoReading  = 1
	MiniUnderRange = 0
)

// MiniRangeMeters 将Mini原始毫米值换算为米，并映射特殊值：
// 65535→+Inf（超出量程），1→NaN（无法测量），0→-Inf（低于最小量程）。
func MiniRangeMeters(raw uint16) float64 {
	switch raw {
	case MiniOverRange:
		return math.Inf(1)
	case MiniNoReading:
		return math.NaN()
	case MiniUnderRange:
		return math.Inf(-1)
	default:
		return float64(raw) / 1000.0
	}
}

// DecodeMini 解码Mini测距帧，返回原始值与换算后的米值
func DecodeMini(frame []byte) ([]uint16, []float64, error) {
	if len(frame) < MiniFrameSize(PixelSingle) || len(frame)%2 != 0 {
		return nil, nil, &InvalidFrameLengthError{Kind: KindMini, Expected: MiniFrameSize(PixelSingle), Actual: len(frame)}
	}
	if frame[0] != MiniHeader {
		return nil, nil, fmt.Errorf("%w: mini frame starts with 0x%02X", ErrUnexpectedHeader, frame[0])
	}
	n := (len(frame) - 2) / 2
	raw := make([]uint16, n)
	meters := make([]float64, n)
	for i := 0; i < n; i++ {
		raw[i] = binary.BigEndian.Uint16(frame[2*i+1:])
		meters[i] = MiniRangeMeters(raw[i])
	}
	return raw, meters, nil
}

// EncodeMiniFrame 生成Mini测距帧
func EncodeMiniFrame(values ...uint16) []byte {
	frame := make([]byte, 0, 2+2*len(values))
	frame = append(frame, MiniHeader)
	for _, v := range values {
		frame = binary.BigEndian.AppendUint16(frame, v)
	}
	return append(frame, CRC8(frame))
}

// ThermalImage 32×32 热成像（摄氏度）
type ThermalImage struct {
	Pixels     [ThermalRows][ThermalCols]float64
	Ambient    float64
	RawPixels  []uint16
	RawAmbient uint16
}

// DeciKelvinToCelsius 0.1K → ℃
func DeciKelvinToCelsius(raw uint16) float64 {
	return float64(raw)/10.0 - 273.15
}

// DecodeThermal 解码热成像帧（调用方需先通过 VerifyThermalFrame）
func DecodeThermal(frame []byte) (*ThermalImage, error) {
	if len(frame) != ThermalFrameSize {
		return nil, &InvalidFrameLengthError{Kind: KindThermal, Expected: ThermalFrameSize, Actual: len(frame)}
	}
	if binary.LittleEndian.Uint16(frame) != ThermalHeaderWord {
		return nil, fmt.Errorf("%w: thermal header word %d", ErrUnexpectedHeader, binary.LittleEndian.Uint16(frame))
	}
	body := frame[thermalHeaderSize:]
	img := &ThermalImage{RawPixels: make([]uint16, ThermalPixels)}
	for i := 0; i < ThermalPixels; i++ {
		w := thermalWord(body, i)
		img.RawPixels[i] = w
		img.Pixels[i/ThermalCols][i%ThermalCols] = DeciKelvinToCelsius(w)
	}
	img.RawAmbient = thermalWord(body, thermalAmbientWord)
	img.Ambient = DeciKelvinToCelsius(img.RawAmbient)
	return img, nil
}

// EncodeThermalFrame 生成热成像帧（像素与环境温度均为0.1K）
func EncodeThermalFrame(pixels []uint16, ambient uint16) []byte {
	frame := make([]byte, ThermalFrameSize)
	copy(frame, ThermalHeader)
	body := frame[thermalHeaderSize:]
	for i := 0; i < ThermalPixels && i < len(pixels); i++ {
		putThermalWord(body, i, pixels[i])
	}
	putThermalWord(body, thermalAmbientWord, ambient)
	sum := CRC32MPEG2(body[:thermalCRCCoverage])
	putThermalWord(body, thermalCRCHighWord, uint16(sum>>16))
	putThermalWord(body, thermalCRCLowWord, uint16(sum))
	return frame
}
