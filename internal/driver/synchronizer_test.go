package driver

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"github.com/taoyao-code/evo-gateway/internal/serialport"
	"github.com/taoyao-code/evo-gateway/internal/simulator"
)

func newTestDevice(t *testing.T, model evo.Model) *simulator.Device {
	t.Helper()
	dev, err := simulator.New(&simulator.Script{Model: string(model), ReadTimeout: 30 * time.Millisecond})
	require.NoError(t, err)
	return dev
}

func rangeFill(v uint16) []byte {
	values := make([]uint16, evo.RangePixels)
	for i := range values {
		values[i] = v
	}
	return evo.EncodeRangeFrame(values)
}

func thermalFill(v uint16) []byte {
	pixels := make([]uint16, evo.ThermalPixels)
	for i := range pixels {
		pixels[i] = v
	}
	return evo.EncodeThermalFrame(pixels, v)
}

func TestReadHeaderMatchedFrame_GarbageRecovery(t *testing.T) {
	tests := []struct {
		name    string
		garbage int
	}{
		{"无噪声", 0},
		{"单字节噪声", 1},
		{"少量噪声", 7},
		{"大量噪声", 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newTestDevice(t, evo.ModelEvoThermal)
			want := thermalFill(2982)
			dev.Feed(simulator.Garbage(tt.garbage))
			dev.Feed(want)

			s := NewSynchronizer(dev, SyncConfig{}, nil)
			frame, discarded, err := s.ReadHeaderMatchedFrame(evo.KindThermal, evo.ThermalFrameSize, evo.ThermalHeader)
			require.NoError(t, err)
			assert.Equal(t, tt.garbage, discarded)
			assert.Equal(t, want, frame)
			assert.NoError(t, evo.VerifyThermalFrame(frame))
			assert.Equal(t, int64(tt.garbage), s.Stats().DiscardedBytes)
			assert.Equal(t, 0, dev.Pending())
		})
	}
}

func TestReadHeaderMatchedFrame_DiscardCap(t *testing.T) {
	dev := newTestDevice(t, evo.ModelEvoMini)
	dev.Feed(simulator.Garbage(64))
	dev.Feed(evo.EncodeMiniFrame(1234))

	s := NewSynchronizer(dev, SyncConfig{MaxDiscard: 16}, nil)
	_, discarded, err := s.ReadHeaderMatchedFrame(evo.KindMini, 4, []byte{evo.MiniHeader})
	assert.ErrorIs(t, err, evo.ErrFrameSyncLost)
	assert.Equal(t, 16, discarded)
	assert.Equal(t, int64(1), s.Stats().SyncLost)
}

func TestReadHeaderMatchedFrame_Truncated(t *testing.T) {
	dev := newTestDevice(t, evo.ModelEvoMini)
	dev.Feed([]byte{evo.MiniHeader, 0x04})

	s := NewSynchronizer(dev, SyncConfig{}, nil)
	_, _, err := s.ReadHeaderMatchedFrame(evo.KindMini, 4, []byte{evo.MiniHeader})
	assert.ErrorIs(t, err, evo.ErrInvalidFrameLength)
	assert.ErrorIs(t, err, serialport.ErrReadTimeout)
	assert.True(t, evo.IsRecoverable(err))
}

func TestReadFixedFrame(t *testing.T) {
	t.Run("完整行", func(t *testing.T) {
		dev := newTestDevice(t, evo.ModelEvo64px)
		want := rangeFill(1200)
		dev.Feed(want)

		s := NewSynchronizer(dev, SyncConfig{}, nil)
		frame, discarded, err := s.ReadFixedFrame(evo.KindRange, evo.RangeFrameSize, evo.RangeHeader)
		require.NoError(t, err)
		assert.Zero(t, discarded)
		assert.Equal(t, want, frame)
	})

	t.Run("行首噪声被截掉", func(t *testing.T) {
		dev := newTestDevice(t, evo.ModelEvo64px)
		want := rangeFill(1200)
		dev.Feed(simulator.Garbage(5))
		dev.Feed(want)

		s := NewSynchronizer(dev, SyncConfig{}, nil)
		frame, discarded, err := s.ReadFixedFrame(evo.KindRange, evo.RangeFrameSize, evo.RangeHeader)
		require.NoError(t, err)
		assert.Equal(t, 5, discarded)
		assert.Equal(t, want, frame)
	})

	t.Run("短行后恢复", func(t *testing.T) {
		dev := newTestDevice(t, evo.ModelEvo64px)
		want := rangeFill(1500)
		dev.Feed([]byte("partial\n"))
		dev.Feed(want)

		s := NewSynchronizer(dev, SyncConfig{}, nil)
		frame, discarded, err := s.ReadFixedFrame(evo.KindRange, evo.RangeFrameSize, evo.RangeHeader)
		require.NoError(t, err)
		assert.Equal(t, want, frame)
		assert.Equal(t, len("partial\n"), discarded)
		assert.Equal(t, int64(1), s.Stats().LengthMismatches)
	})

	t.Run("噪声中含分隔符", func(t *testing.T) {
		dev := newTestDevice(t, evo.ModelEvo64px)
		want := rangeFill(1200)
		garbage := []byte{0xA5, evo.LineDelimiter, 0xEE, 0x3C, 0xC3}
		dev.Feed(garbage)
		dev.Feed(want)

		s := NewSynchronizer(dev, SyncConfig{}, nil)
		frame, discarded, err := s.ReadFixedFrame(evo.KindRange, evo.RangeFrameSize, evo.RangeHeader)
		require.NoError(t, err)
		assert.Equal(t, want, frame)
		assert.Equal(t, len(garbage), discarded)
		assert.Equal(t, int64(len(garbage)), s.Stats().DiscardedBytes)
		assert.Equal(t, int64(1), s.Stats().LengthMismatches)
		assert.Equal(t, 0, dev.Pending())
	})

	t.Run("连续错误行触发失步", func(t *testing.T) {
		dev := newTestDevice(t, evo.ModelEvo64px)
		for i := 0; i < 3; i++ {
			dev.Feed([]byte("noise\n"))
		}

		s := NewSynchronizer(dev, SyncConfig{MaxAttempts: 3}, nil)
		_, discarded, err := s.ReadFixedFrame(evo.KindRange, evo.RangeFrameSize, evo.RangeHeader)
		require.ErrorIs(t, err, evo.ErrFrameSyncLost)
		assert.Equal(t, 3*len("noise\n"), discarded)
		assert.Equal(t, int64(discarded), s.Stats().DiscardedBytes)
		var le *evo.InvalidFrameLengthError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, 6, le.Actual)
		assert.Equal(t, evo.RangeFrameSize, le.Expected)
	})

	t.Run("读超时直接返回", func(t *testing.T) {
		dev := newTestDevice(t, evo.ModelEvo64px)
		s := NewSynchronizer(dev, SyncConfig{}, nil)
		_, _, err := s.ReadFixedFrame(evo.KindRange, evo.RangeFrameSize, evo.RangeHeader)
		assert.ErrorIs(t, err, serialport.ErrReadTimeout)
	})
}

func TestProbeVariableFrame(t *testing.T) {
	tests := []struct {
		name   string
		values []uint16
	}{
		{"单像素4字节", []uint16{1234}},
		{"双像素6字节", []uint16{5000, 65535}},
		{"2x2像素10字节", []uint16{1000, 2000, 3000, 4000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newTestDevice(t, evo.ModelEvoMini)
			want := evo.EncodeMiniFrame(tt.values...)
			dev.Feed(simulator.Garbage(3))
			dev.Feed(want)

			s := NewSynchronizer(dev, SyncConfig{}, nil)
			frame, discarded, err := s.ProbeVariableFrame(evo.KindMini, evo.MiniHeader, evo.MiniProbeSizes, evo.VerifyMiniFrame)
			require.NoError(t, err)
			assert.Equal(t, 3, discarded)
			assert.Equal(t, want, frame)
			assert.Equal(t, int64(1), s.Stats().Probes)
		})
	}

	t.Run("全部长度校验失败", func(t *testing.T) {
		dev := newTestDevice(t, evo.ModelEvoMini)
		bad := evo.EncodeMiniFrame(1000, 2000, 3000, 4000)
		bad[len(bad)-1] ^= 0xFF
		dev.Feed(bad)

		s := NewSynchronizer(dev, SyncConfig{}, nil)
		_, _, err := s.ProbeVariableFrame(evo.KindMini, evo.MiniHeader, evo.MiniProbeSizes, evo.VerifyMiniFrame)
		assert.ErrorIs(t, err, evo.ErrChecksumMismatch)
	})
}
