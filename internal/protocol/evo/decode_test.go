package evo

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomDepths(seed int64) []uint16 {
	r := rand.New(rand.NewSource(seed))
	values := make([]uint16, RangePixels)
	for i := range values {
		values[i] = uint16(r.Intn(16384))
	}
	return values
}

func TestDecodeRange_RoundTrip14Bit(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		values := randomDepths(seed)
		grid, err := DecodeRange(EncodeRangeFrame(values), Mask14Bit)
		require.NoError(t, err)
		assert.Equal(t, values, grid.Flat(), "seed %d", seed)
	}
}

func TestDecodeRange_12BitMaskTruncates(t *testing.T) {
	values := randomDepths(42)
	values[0] = 16383
	values[1] = 4096
	grid, err := DecodeRange(EncodeRangeFrame(values), Mask12Bit)
	require.NoError(t, err)
	for i, v := range grid.Flat() {
		assert.Equal(t, values[i]&0x0FFF, v, "pixel %d", i)
	}
	assert.Equal(t, uint16(0x0FFF), grid[0][0])
	assert.Equal(t, uint16(0), grid[0][1])
}

func TestDecodeRange_RowMajor(t *testing.T) {
	values := make([]uint16, RangePixels)
	for i := range values {
		values[i] = uint16(i)
	}
	grid, err := DecodeRange(EncodeRangeFrame(values), Mask14Bit)
	require.NoError(t, err)
	assert.Equal(t, uint16(9), grid[1][1])
	assert.Equal(t, uint16(63), grid[7][7])
	assert.Equal(t, uint16(15), grid[1][7])
}

func TestDecodeRange_Rejects(t *testing.T) {
	frame := EncodeRangeFrame(randomDepths(7))

	_, err := DecodeRange(frame[:RangeFrameSize-1], Mask14Bit)
	assert.ErrorIs(t, err, ErrInvalidFrameLength)

	bad := append([]byte(nil), frame...)
	bad[0] = 0x12
	_, err = DecodeRange(bad, Mask14Bit)
	assert.ErrorIs(t, err, ErrUnexpectedHeader)
}

func TestCheckRangeGrid(t *testing.T) {
	var g RangeGrid
	g[0][0] = 64
	assert.ErrorIs(t, CheckRangeGrid(&g, 64), ErrDegenerateFrame)

	g[0][1] = 1
	assert.NoError(t, CheckRangeGrid(&g, 64))
}

func TestMiniRangeMeters(t *testing.T) {
	assert.True(t, math.IsInf(MiniRangeMeters(65535), 1))
	assert.True(t, math.IsNaN(MiniRangeMeters(1)))
	assert.True(t, math.IsInf(MiniRangeMeters(0), -1))
	assert.Equal(t, 5.0, MiniRangeMeters(5000))
	assert.Equal(t, 0.002, MiniRangeMeters(2))
}

func TestDecodeMini(t *testing.T) {
	tests := []struct {
		name   string
		values []uint16
	}{
		{"单像素", []uint16{5000}},
		{"双像素", []uint16{1234, 65535}},
		{"2x2像素", []uint16{0, 1, 2000, 3000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := EncodeMiniFrame(tt.values...)
			require.NoError(t, VerifyMiniFrame(frame))
			raw, meters, err := DecodeMini(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.values, raw)
			require.Len(t, meters, len(tt.values))
			for i, v := range tt.values {
				want := MiniRangeMeters(v)
				if math.IsNaN(want) {
					assert.True(t, math.IsNaN(meters[i]))
					continue
				}
				assert.Equal(t, want, meters[i])
			}
		})
	}

	_, _, err := DecodeMini([]byte{'X', 0x13, 0x88, 0x00})
	assert.ErrorIs(t, err, ErrUnexpectedHeader)
	_, _, err = DecodeMini([]byte{'T', 0x13})
	assert.ErrorIs(t, err, ErrInvalidFrameLength)
}

func TestMiniFrameSizes(t *testing.T) {
	assert.Equal(t, 4, MiniFrameSize(PixelSingle))
	assert.Equal(t, 6, MiniFrameSize(PixelTwo))
	assert.Equal(t, 10, MiniFrameSize(PixelTwoByTwo))
	assert.Equal(t, []int{4, 6, 10}, MiniProbeSizes)
	assert.Equal(t, PixelTwo, MiniPixelModeForSize(6))
	assert.Equal(t, PixelUnknown, MiniPixelModeForSize(5))
}

func TestDeciKelvinToCelsius(t *testing.T) {
	assert.InDelta(t, 25.05, DeciKelvinToCelsius(2982), 1e-9)
	assert.InDelta(t, -273.15, DeciKelvinToCelsius(0), 1e-9)
}

func TestDecodeThermal(t *testing.T) {
	pixels := make([]uint16, ThermalPixels)
	for i := range pixels {
		pixels[i] = 2732 + uint16(i%50)
	}
	pixels[33] = 2982
	frame := EncodeThermalFrame(pixels, 2982)
	require.NoError(t, VerifyThermalFrame(frame))

	img, err := DecodeThermal(frame)
	require.NoError(t, err)
	assert.InDelta(t, 25.05, img.Pixels[1][1], 1e-9)
	assert.InDelta(t, 25.05, img.Ambient, 1e-9)
	assert.Equal(t, uint16(2982), img.RawAmbient)
	assert.Equal(t, pixels, img.RawPixels)

	m := NewThermalMeasurement(img)
	assert.Equal(t, ThermalRows, m.Rows)
	assert.InDelta(t, 25.05, m.At(1, 1), 1e-9)
	require.NotNil(t, m.Ambient)

	bad := append([]byte(nil), frame...)
	bad[0] = 0x0E
	_, err = DecodeThermal(bad)
	assert.ErrorIs(t, err, ErrUnexpectedHeader)
}

func TestParseAck(t *testing.T) {
	f := AckFormatFor(ModelEvo64px)
	assert.True(t, f.DrainLine)

	ack, err := ParseAck(f, []byte{0x14, 0x00, 0x00, 0x09})
	require.NoError(t, err)
	assert.True(t, ack.Acked())

	ack, err = ParseAck(f, EncodeAck(f, 0x00, 0x01))
	require.NoError(t, err)
	assert.False(t, ack.Acked())

	_, err = ParseAck(f, []byte{0x14, 0x00, 0x00, 0x0A})
	var ce *ChecksumError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, uint32(0x0A), ce.Expected)
	assert.Equal(t, uint32(0x09), ce.Actual)

	mf := AckFormatFor(ModelMultiFlex)
	ack, err = ParseAck(mf, []byte{0x52, 0x45, 0x11, 0x00, 0xD4})
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), ack.Echo)
	assert.True(t, ack.Acked())

	ack, err = ParseAck(mf, []byte{0x52, 0x45, 0x11, 0xFF, 0x27})
	require.NoError(t, err)
	assert.False(t, ack.Acked())
}

func TestLookupCommand(t *testing.T) {
	c, err := LookupCommand(ModelEvo64px, CmdStreamStart)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x52, 0x02, 0x01, 0xDF}, c.Opcode())

	// 返回的是副本
	op := c.Opcode()
	op[0] = 0xFF
	assert.Equal(t, byte(0x00), c.Opcode()[0])

	pc, err := PixelCommand(PixelTwo)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x21, 0x03, 0xB2}, pc.Opcode())

	_, err = LookupCommand(ModelEvoMini, CmdStreamStart)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestReadingJSON(t *testing.T) {
	in := []Reading{Reading(math.Inf(1)), Reading(math.NaN()), Reading(math.Inf(-1)), 5}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `["+Inf","NaN","-Inf",5]`, string(b))

	var out []Reading
	require.NoError(t, json.Unmarshal(b, &out))
	assert.True(t, math.IsInf(float64(out[0]), 1))
	assert.True(t, math.IsNaN(float64(out[1])))
	assert.True(t, math.IsInf(float64(out[2]), -1))
	assert.Equal(t, Reading(5), out[3])
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel("Evo-64px")
	require.NoError(t, err)
	assert.Equal(t, ModelEvo64px, m)
	_, err = ParseModel("lidar")
	assert.Error(t, err)
}
