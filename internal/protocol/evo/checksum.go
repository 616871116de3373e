package evo

import (
	"github.com/sigurn/crc8"
	"github.com/snksoft/crc"
)

// CRC-8：多项式0x07，初值0x00，无反射，无异或输出
var crc8Table = crc8.MakeTable(crc8.CRC8)

// CRC-32/MPEG-2：多项式0x04C11DB7，初值0xFFFFFFFF，无反射，无异或输出
var crc32MPEG2 = crc.NewTable(&crc.Parameters{
	Width:      32,
	Polynomial: 0x04C11DB7,
	Init:       0xFFFFFFFF,
	ReflectIn:  false,
	ReflectOut: false,
	FinalXor:   0x00000000,
})

// CRC8 计算ACK帧与Mini测距帧使用的CRC-8
func CRC8(data []byte) byte {
	return crc8.Checksum(data, crc8Table)
}

// CRC32MPEG2 计算64px与热成像帧使用的CRC-32
func CRC32MPEG2(data []byte) uint32 {
	return uint32(crc32MPEG2.CalculateCRC(data))
}

// VerifyCRC8 校验 payload 的CRC-8是否等于 expected
func VerifyCRC8(payload []byte, expected byte) bool {
	return CRC8(payload) == expected
}

// VerifyCRC32 校验 payload 的CRC-32是否等于 expected
func VerifyCRC32(payload []byte, expected uint32) bool {
	return CRC32MPEG2(payload) == expected
}

// NibbleCRC 从8个字节的低4位还原32位校验值，高位半字节在前
func NibbleCRC(b []byte) uint32 {
	var v uint32
	for i := 0; i < 8 && i < len(b); i++ {
		v = v<<4 | uint32(b[i]&0x0F)
	}
	return v
}

// PutNibbleCRC 将32位校验值拆成8个半字节写入 dst[:8]。
// 高4位固定为 nibbleFill，避免低半字节与行分隔符冲突。
func PutNibbleCRC(dst []byte, v uint32) {
	for i := 0; i < 8; i++ {
		shift := uint(28 - 4*i)
		dst[i] = nibbleFill | byte(v>>shift)&0x0F
	}
}

const nibbleFill = 0x80

// VerifyRangeFrame 校验64px测距帧（CRC-32，校验值以半字节形式存放）
func VerifyRangeFrame(frame []byte) error {
	if len(frame) != RangeFrameSize {
		return &InvalidFrameLengthError{Kind: KindRange, Expected: RangeFrameSize, Actual: len(frame)}
	}
	carried := NibbleCRC(frame[rangeCRCOffset : rangeCRCOffset+8])
	computed := CRC32MPEG2(frame[:rangeCRCOffset])
	if carried != computed {
		return &ChecksumError{Kind: KindRange, Algo: "crc32", Expected: carried, Actual: computed}
	}
	return nil
}

// VerifyMiniFrame 校验Mini测距帧（最后一字节为前面所有字节的CRC-8）
func VerifyMiniFrame(frame []byte) error {
	if len(frame) < 2 {
		return &InvalidFrameLengthError{Kind: KindMini, Expected: MiniFrameSize(PixelSingle), Actual: len(frame)}
	}
	last := len(frame) - 1
	if computed := CRC8(frame[:last]); computed != frame[last] {
		return &ChecksumError{Kind: KindMini, Algo: "crc8", Expected: uint32(frame[last]), Actual: uint32(computed)}
	}
	return nil
}

// VerifyThermalFrame 校验热成像帧：CRC-32覆盖帧头之后的2064字节，
// 校验值由第1032、1033个字（高16位、低16位）组成。
func VerifyThermalFrame(frame []byte) error {
	if len(frame) != ThermalFrameSize {
		return &InvalidFrameLengthError{Kind: KindThermal, Expected: ThermalFrameSize, Actual: len(frame)}
	}
	body := frame[thermalHeaderSize:]
	carried := uint32(thermalWord(body, thermalCRCHighWord))<<16 | uint32(thermalWord(body, thermalCRCLowWord))
	computed := CRC32MPEG2(body[:thermalCRCCoverage])
	if carried != computed {
		return &ChecksumError{Kind: KindThermal, Algo: "crc32", Expected: carried, Actual: computed}
	}
	return nil
}
