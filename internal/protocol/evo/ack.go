package evo

import (
	"bytes"
	"fmt"
)

// AckFormat 描述一种应答帧：帧头、长度，以及等待帧头时是否需要
// 同时排空一整行缓冲的数据流。
type AckFormat struct {
	Kind      FrameKind
	Header    []byte
	Size      int
	DrainLine bool
}

// AckFormatFor 返回型号的应答格式
func AckFormatFor(model Model) AckFormat {
	switch model {
	case ModelEvoMini:
		return AckFormat{Kind: KindAck, Header: []byte{AckHeaderMini}, Size: AckFrameSize}
	case ModelMultiFlex:
		return AckFormat{Kind: KindMultiFlex, Header: MultiFlexAckHeader, Size: MultiFlexAckSize}
	case ModelEvoThermal:
		return AckFormat{Kind: KindAck, Header: []byte{AckHeader64px}, Size: AckFrameSize}
	default:
		return AckFormat{Kind: KindAck, Header: []byte{AckHeader64px}, Size: AckFrameSize, DrainLine: true}
	}
}

func (f AckFormat) statusIndex() int { return f.Size - 2 }
func (f AckFormat) echoIndex() int   { return f.Size - 3 }

// Ack 一帧校验通过的应答
type Ack struct {
	Raw    []byte `json:"raw"`
	Echo   byte   `json:"echo"`
	Status byte   `json:"status"`
}

// Acked 状态字节为0表示接受
func (a *Ack) Acked() bool { return a.Status == 0 }

// ParseAck 校验长度、帧头与CRC-8（覆盖除最后一字节外的全部字节）
func ParseAck(f AckFormat, frame []byte) (*Ack, error) {
	if len(frame) != f.Size {
		return nil, &InvalidFrameLengthError{Kind: f.Kind, Expected: f.Size, Actual: len(frame)}
	}
	if !bytes.HasPrefix(frame, f.Header) {
		return nil, fmt.Errorf("%w: ack starts with % X", ErrUnexpectedHeader, frame[:len(f.Header)])
	}
	last := f.Size - 1
	if computed := CRC8(frame[:last]); computed != frame[last] {
		return nil, &ChecksumError{Kind: f.Kind, Algo: "crc8", Expected: uint32(frame[last]), Actual: uint32(computed)}
	}
	raw := append([]byte(nil), frame...)
	return &Ack{Raw: raw, Echo: frame[f.echoIndex()], Status: frame[f.statusIndex()]}, nil
}

// EncodeAck 生成应答帧
func EncodeAck(f AckFormat, echo, status byte) []byte {
	frame := make([]byte, 0, f.Size)
	frame = append(frame, f.Header...)
	frame = append(frame, echo, status)
	return append(frame, CRC8(frame))
}
