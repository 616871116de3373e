package simulator

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"gopkg.in/yaml.v3"
)

// 命令应答方式
const (
	ReplyAck    = "ack"
	ReplyNack   = "nack"
	ReplyBadCRC = "bad_crc"
	ReplySilent = "silent"
)

// Script 模拟设备脚本
type Script struct {
	Model       string            `yaml:"model"`
	ReadTimeout time.Duration     `yaml:"read_timeout,omitempty"`
	Streaming   bool              `yaml:"streaming,omitempty"`   // 上电即输出数据流
	Loop        bool              `yaml:"loop,omitempty"`        // 帧序列循环播放
	Replies     map[string]string `yaml:"replies,omitempty"`     // 命令名 → ack|nack|bad_crc|silent
	AckGarbage  int               `yaml:"ack_garbage,omitempty"` // ACK 之前插入的噪声字节数
	Frames      []FrameSpec       `yaml:"frames"`
}

// FrameSpec 一帧（或一段噪声）的描述
type FrameSpec struct {
	Garbage int          `yaml:"garbage,omitempty"`
	Raw     string       `yaml:"raw,omitempty"` // 十六进制，允许空格
	Range   *RangeSpec   `yaml:"range,omitempty"`
	Mini    []uint16     `yaml:"mini,omitempty"`
	Thermal *ThermalSpec `yaml:"thermal,omitempty"`
	Corrupt bool         `yaml:"corrupt,omitempty"` // 翻转一个载荷位，制造CRC错误
}

// RangeSpec 64px 深度帧，Values 优先于 Fill
type RangeSpec struct {
	Fill   uint16   `yaml:"fill,omitempty"`
	Values []uint16 `yaml:"values,omitempty"`
}

// ThermalSpec 热成像帧（0.1K）
type ThermalSpec struct {
	Fill    uint16 `yaml:"fill"`
	Ambient uint16 `yaml:"ambient"`
}

// LoadScript 从 YAML 文件加载脚本
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read simulator script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript 解析 YAML 脚本
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse simulator script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate 检查型号、应答方式与帧描述
func (s *Script) Validate() error {
	if _, err := evo.ParseModel(s.Model); err != nil {
		return err
	}
	for name, reply := range s.Replies {
		switch reply {
		case ReplyAck, ReplyNack, ReplyBadCRC, ReplySilent:
		default:
			return fmt.Errorf("command %s: unknown reply %q", name, reply)
		}
	}
	for i, f := range s.Frames {
		if _, err := f.Bytes(); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

// garbagePattern 不含任何帧头与行分隔符
var garbagePattern = []byte{0xA5, 0xEE, 0x3C, 0xC3}

// Garbage 生成 n 字节噪声
func Garbage(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = garbagePattern[i%len(garbagePattern)]
	}
	return out
}

// Bytes 按线格式生成字节
func (f FrameSpec) Bytes() ([]byte, error) {
	var frame []byte
	switch {
	case f.Garbage > 0:
		return Garbage(f.Garbage), nil
	case f.Raw != "":
		b, err := hex.DecodeString(strings.ReplaceAll(f.Raw, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("raw frame: %w", err)
		}
		return b, nil
	case f.Range != nil:
		values := f.Range.Values
		if len(values) == 0 {
			values = make([]uint16, evo.RangePixels)
			for i := range values {
				values[i] = f.Range.Fill
			}
		}
		if len(values) != evo.RangePixels {
			return nil, fmt.Errorf("range frame needs %d values, got %d", evo.RangePixels, len(values))
		}
		frame = evo.EncodeRangeFrame(values)
	case len(f.Mini) > 0:
		switch len(f.Mini) {
		case 1, 2, 4:
		default:
			return nil, fmt.Errorf("mini frame carries 1, 2 or 4 values, got %d", len(f.Mini))
		}
		frame = evo.EncodeMiniFrame(f.Mini...)
	case f.Thermal != nil:
		pixels := make([]uint16, evo.ThermalPixels)
		for i := range pixels {
			pixels[i] = f.Thermal.Fill
		}
		frame = evo.EncodeThermalFrame(pixels, f.Thermal.Ambient)
	default:
		return nil, fmt.Errorf("empty frame spec")
	}
	if f.Corrupt {
		// 第3字节总在载荷内
		frame[2] ^= 0x20
	}
	return frame, nil
}
