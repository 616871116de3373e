package driver

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"github.com/taoyao-code/evo-gateway/internal/serialport"
	"github.com/taoyao-code/evo-gateway/internal/simulator"
)

func newScriptedSensor(t *testing.T, script *simulator.Script, cfg Config) (Sensor, *simulator.Device) {
	t.Helper()
	if script.ReadTimeout == 0 {
		script.ReadTimeout = 30 * time.Millisecond
	}
	dev, err := simulator.New(script)
	require.NoError(t, err)
	cfg.Model = script.Model
	s, err := New(dev, cfg, nil, nil)
	require.NoError(t, err)
	return s, dev
}

func TestEvo64px_Stream(t *testing.T) {
	s, dev := newScriptedSensor(t, &simulator.Script{
		Model: "evo64px",
		Frames: []simulator.FrameSpec{
			{Range: &simulator.RangeSpec{Fill: 1200}, Corrupt: true},
			{Range: &simulator.RangeSpec{Fill: 0}},
			{Range: &simulator.RangeSpec{Fill: 1200}},
		},
	}, Config{})
	ctx := context.Background()

	require.NoError(t, s.Activate(ctx))
	assert.True(t, dev.Streaming())

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, evo.ErrChecksumMismatch)
	assert.True(t, evo.IsRecoverable(err))

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, evo.ErrDegenerateFrame)
	assert.True(t, evo.IsRecoverable(err))

	m, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Seq)
	assert.Equal(t, evo.RangeRows, m.Rows)
	assert.Equal(t, evo.UnitMeters, m.Unit)
	assert.InDelta(t, 1.2, m.At(7, 7), 1e-9)
	assert.Equal(t, uint16(1200), m.Raw[0])

	require.NoError(t, s.Deactivate(ctx))
	assert.False(t, dev.Streaming())

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Frames)
	assert.Equal(t, int64(3), stats.Sync.Frames)
	require.NotNil(t, stats.LastCommand)
	assert.Equal(t, evo.CmdStreamStop, stats.LastCommand.Command)
}

func TestEvo64px_MaskWidth(t *testing.T) {
	s, _ := newScriptedSensor(t, &simulator.Script{
		Model:     "evo64px",
		Streaming: true,
		Frames:    []simulator.FrameSpec{{Range: &simulator.RangeSpec{Fill: 5000}}},
	}, Config{RangeMaskBits: 12})

	m, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(5000&0x0FFF), m.Raw[0])
	assert.Equal(t, evo.Mask12Bit, s.(*Evo64px).MaskWidth())

	_, err = New(simulator.NewModel(evo.ModelEvo64px), Config{Model: "evo64px", RangeMaskBits: 13}, nil, nil)
	assert.Error(t, err)
}

func TestMini_TracksPixelMode(t *testing.T) {
	s, dev := newScriptedSensor(t, &simulator.Script{
		Model:     "evomini",
		Streaming: true,
		Loop:      true,
		Frames:    []simulator.FrameSpec{{Mini: []uint16{1000, 2000, 3000, 4000}}},
	}, Config{PixelMode: "2x2", RangeBand: "long"})
	mini := s.(*Mini)
	ctx := context.Background()

	assert.Equal(t, evo.PixelUnknown, mini.PixelMode())
	require.NoError(t, s.Activate(ctx))
	assert.Equal(t, evo.PixelTwoByTwo, mini.PixelMode())

	binary, _ := evo.LookupCommand(evo.ModelEvoMini, evo.CmdBinaryMode)
	long, _ := evo.LookupCommand(evo.ModelEvoMini, evo.CmdLongRange)
	pixel, _ := evo.PixelCommand(evo.PixelTwoByTwo)
	var want []byte
	want = append(want, binary.Opcode()...)
	want = append(want, long.Opcode()...)
	want = append(want, pixel.Opcode()...)
	assert.Equal(t, want, dev.Written())

	for i := 0; i < 3; i++ {
		m, err := s.Next(ctx)
		require.NoError(t, err)
		require.Len(t, m.Values, 4)
		assert.Equal(t, []evo.Reading{1, 2, 3, 4}, m.Values)
	}
	assert.Zero(t, s.Stats().Sync.Probes)
	assert.Equal(t, "2x2", s.Stats().PixelMode)
}

func TestMini_UncertainCommandResetsPixelMode(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantErr error
		want    evo.PixelMode
	}{
		{"设备拒绝", simulator.ReplyNack, evo.ErrNackReceived, evo.PixelSingle},
		{"应答超时", simulator.ReplySilent, evo.ErrAckTimeout, evo.PixelUnknown},
		{"应答校验错误", simulator.ReplyBadCRC, evo.ErrChecksumMismatch, evo.PixelUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, dev := newScriptedSensor(t, &simulator.Script{Model: "evomini"}, Config{
				Dispatch: DispatcherConfig{AckTimeout: 100 * time.Millisecond},
			})
			mini := s.(*Mini)
			ctx := context.Background()

			_, err := s.Send(ctx, evo.CmdSinglePixel)
			require.NoError(t, err)
			require.Equal(t, evo.PixelSingle, mini.PixelMode())

			dev.SetReply(evo.CmdTwoPixel, tt.reply)
			_, err = s.Send(ctx, evo.CmdTwoPixel)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.want, mini.PixelMode())
		})
	}
}

func TestMini_RelearnsPixelModeFromFrames(t *testing.T) {
	s, _ := newScriptedSensor(t, &simulator.Script{
		Model:     "evomini",
		Streaming: true,
		Loop:      true,
		Frames:    []simulator.FrameSpec{{Mini: []uint16{1000, 2000}}},
	}, Config{})
	mini := s.(*Mini)
	mini.pixel.Store(int32(evo.PixelSingle))
	ctx := context.Background()

	var (
		m      *evo.Measurement
		failed int
	)
	for i := 0; i < 20 && m == nil; i++ {
		got, err := s.Next(ctx)
		if err != nil {
			assert.ErrorIs(t, err, evo.ErrChecksumMismatch)
			failed++
			continue
		}
		m = got
	}
	require.NotNil(t, m, "没有恢复出有效帧")
	assert.Equal(t, miniRelearnAfter, failed)
	assert.Equal(t, []evo.Reading{1, 2}, m.Values)
	assert.Equal(t, evo.PixelTwo, mini.PixelMode())
	assert.Equal(t, int64(1), s.Stats().Sync.Probes)

	for i := 0; i < 3; i++ {
		m, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Len(t, m.Values, 2)
	}
	assert.Equal(t, int64(1), s.Stats().Sync.Probes)
}

func TestMini_ProbesWhenModeUnknown(t *testing.T) {
	s, _ := newScriptedSensor(t, &simulator.Script{
		Model:     "evomini",
		Streaming: true,
		Frames: []simulator.FrameSpec{
			{Garbage: 2},
			{Mini: []uint16{5000, 65535}},
		},
	}, Config{})

	m, err := s.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, m.Values, 2)
	assert.Equal(t, evo.Reading(5), m.Values[0])
	assert.True(t, math.IsInf(float64(m.Values[1]), 1))
	assert.Equal(t, int64(1), s.Stats().Sync.Probes)
	assert.Equal(t, int64(2), s.Stats().Sync.DiscardedBytes)
}

func TestThermal_FlushAfterFrame(t *testing.T) {
	tests := []struct {
		name      string
		flush     bool
		secondErr error
	}{
		{"清空积压帧", true, serialport.ErrReadTimeout},
		{"保留积压帧", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, dev := newScriptedSensor(t, &simulator.Script{Model: "evothermal"}, Config{FlushAfterFrame: tt.flush})
			ctx := context.Background()
			require.NoError(t, s.Activate(ctx))

			dev.Feed(thermalFill(2982))
			dev.Feed(thermalFill(3000))

			m, err := s.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, evo.UnitCelsius, m.Unit)
			assert.InDelta(t, 25.05, m.At(0, 0), 1e-9)
			require.NotNil(t, m.Ambient)
			assert.InDelta(t, 25.05, float64(*m.Ambient), 1e-9)

			m, err = s.Next(ctx)
			if tt.secondErr != nil {
				assert.ErrorIs(t, err, tt.secondErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, 26.85, m.At(31, 31), 1e-9)
		})
	}
}

func TestMultiFlex(t *testing.T) {
	s, dev := newScriptedSensor(t, &simulator.Script{Model: "multiflex"}, Config{})
	ctx := context.Background()

	require.NoError(t, s.Activate(ctx))
	assert.Equal(t, []byte{0x00, 0x11, 0x02, 0x4C}, dev.Written())

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, evo.ErrStreamingUnsupported)

	_, err = s.Send(ctx, evo.CmdStreamStart)
	assert.ErrorIs(t, err, evo.ErrUnknownCommand)
}

func TestActivate_NackPropagates(t *testing.T) {
	s, _ := newScriptedSensor(t, &simulator.Script{
		Model:   "evo64px",
		Replies: map[string]string{evo.CmdStreamStart: simulator.ReplyNack},
	}, Config{})

	err := s.Activate(context.Background())
	var ne *evo.NackError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, evo.CmdStreamStart, ne.Command)
}

func TestSensor_CommandsDuringStream(t *testing.T) {
	s, _ := newScriptedSensor(t, &simulator.Script{
		Model:  "evo64px",
		Loop:   true,
		Frames: []simulator.FrameSpec{{Range: &simulator.RangeSpec{Fill: 1200}}},
	}, Config{LockTimeout: time.Second})
	ctx := context.Background()
	require.NoError(t, s.Activate(ctx))

	var (
		wg       sync.WaitGroup
		frames   int
		timeouts int
		badErr   error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 60; i++ {
			_, err := s.Next(ctx)
			switch {
			case err == nil:
				frames++
			case errors.Is(err, serialport.ErrReadTimeout):
				timeouts++
			default:
				badErr = err
				return
			}
		}
	}()

	for i := 0; i < 5; i++ {
		_, err := s.Send(ctx, evo.CmdStreamStop)
		require.NoError(t, err)
		_, err = s.Send(ctx, evo.CmdStreamStart)
		require.NoError(t, err)
	}
	wg.Wait()

	assert.NoError(t, badErr)
	assert.Greater(t, frames, 0)
	assert.Equal(t, 60, frames+timeouts)
}
