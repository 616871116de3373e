package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taoyao-code/evo-gateway/internal/driver"
	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"github.com/taoyao-code/evo-gateway/internal/simulator"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memSink struct {
	mu       sync.Mutex
	name     string
	fail     error
	recFail  error
	got      []*evo.Measurement
	commands []*driver.Exchange
	notify   chan struct{}
}

func newMemSink(name string) *memSink {
	return &memSink{name: name, notify: make(chan struct{}, 16)}
}

func (s *memSink) Name() string { return s.name }

func (s *memSink) Publish(_ context.Context, m *evo.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.got = append(s.got, m)
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

func (s *memSink) RecordCommand(_ context.Context, ex *driver.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recFail != nil {
		return s.recFail
	}
	s.commands = append(s.commands, ex)
	return nil
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

type countingObserver struct {
	mu      sync.Mutex
	results map[string]int
}

func (o *countingObserver) SinkResult(sink, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.results == nil {
		o.results = make(map[string]int)
	}
	o.results[sink+"/"+result]++
}

func measurement(seq uint64) *evo.Measurement {
	return &evo.Measurement{Model: evo.ModelEvoMini, Seq: seq, Rows: 1, Cols: 1, Values: []evo.Reading{1}}
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	assert.Nil(t, h.Latest())
	assert.Empty(t, h.Recent(5))

	for i := uint64(1); i <= 5; i++ {
		h.Add(measurement(i))
	}
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, uint64(5), h.Latest().Seq)

	recent := h.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, []uint64{5, 4, 3}, []uint64{recent[0].Seq, recent[1].Seq, recent[2].Seq})
	assert.Len(t, h.Recent(2), 2)
}

func TestBreaker(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }
	boom := errors.New("boom")

	var transitions []string
	b.OnStateChange(func(from, to BreakerState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	assert.ErrorIs(t, b.Call(func() error { return boom }), boom)
	assert.Equal(t, BreakerClosed, b.State())
	assert.ErrorIs(t, b.Call(func() error { return boom }), boom)
	assert.Equal(t, BreakerOpen, b.State())

	called := false
	assert.ErrorIs(t, b.Call(func() error { called = true; return nil }), ErrBreakerOpen)
	assert.False(t, called)

	// 超时后试探失败，重新打开
	now = now.Add(2 * time.Second)
	assert.ErrorIs(t, b.Call(func() error { return boom }), boom)
	assert.Equal(t, BreakerOpen, b.State())

	// 再次试探成功，恢复
	now = now.Add(2 * time.Second)
	require.NoError(t, b.Call(func() error { return nil }))
	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, int64(2), b.Stats().Trips)
	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestPublisher_IsolatesFailingSink(t *testing.T) {
	good := newMemSink("good")
	bad := newMemSink("bad")
	bad.fail = errors.New("down")
	obs := &countingObserver{}
	p := NewPublisher(PublisherConfig{BreakerThreshold: 2, BreakerTimeout: time.Hour}, nil, obs, good, bad)

	for i := uint64(1); i <= 4; i++ {
		err := p.Publish(context.Background(), measurement(i))
		var pe *PublishError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "bad", pe.Sink)
	}

	assert.Equal(t, 4, good.count())
	assert.Equal(t, 4, obs.results["good/ok"])
	assert.Equal(t, 2, obs.results["bad/error"])
	assert.Equal(t, 2, obs.results["bad/skipped"])
	assert.Equal(t, "open", p.Sinks()["bad"].State)
}

func TestPublisher_RecordCommand(t *testing.T) {
	rec := newMemSink("rec")
	p := NewPublisher(PublisherConfig{}, nil, nil, rec, nil)
	require.NoError(t, p.RecordCommand(context.Background(), &driver.Exchange{Command: evo.CmdStreamStart}))
	require.NoError(t, p.RecordCommand(context.Background(), nil))
	assert.Len(t, rec.commands, 1)
}

func newRunner(t *testing.T, script *simulator.Script, cfg Config, sinks ...Sink) (*Runner, *simulator.Device) {
	t.Helper()
	if script.ReadTimeout == 0 {
		script.ReadTimeout = 20 * time.Millisecond
	}
	dev, err := simulator.New(script)
	require.NoError(t, err)
	sensor, err := driver.New(dev, driver.Config{Model: script.Model}, nil, nil)
	require.NoError(t, err)
	pub := NewPublisher(PublisherConfig{}, nil, nil, sinks...)
	return NewRunner(sensor, pub, NewHistory(8), cfg, nil), dev
}

func TestRunner_StreamsAndStops(t *testing.T) {
	sink := newMemSink("mem")
	r, dev := newRunner(t, &simulator.Script{
		Model: "evo64px",
		Loop:  true,
		Frames: []simulator.FrameSpec{
			{Range: &simulator.RangeSpec{Fill: 1200}},
			{Range: &simulator.RangeSpec{Fill: 1500}, Corrupt: true},
		},
	}, Config{}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-sink.notify:
		case <-time.After(2 * time.Second):
			t.Fatal("没有收到测量")
		}
	}
	assert.True(t, r.Status().Running)
	assert.ErrorIs(t, r.Run(ctx), ErrAlreadyRunning)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("采集循环没有退出")
	}

	st := r.Status()
	assert.False(t, st.Running)
	assert.NotEmpty(t, st.SessionID)
	assert.GreaterOrEqual(t, st.Frames, uint64(3))
	assert.GreaterOrEqual(t, st.Errors, uint64(2))
	assert.False(t, dev.Streaming(), "退出时应发送停止命令")
	assert.Equal(t, uint16(1200), r.History().Latest().Raw[0])
}

func TestRunner_StartStop(t *testing.T) {
	r, dev := newRunner(t, &simulator.Script{
		Model:  "evo64px",
		Loop:   true,
		Frames: []simulator.FrameSpec{{Range: &simulator.RangeSpec{Fill: 1200}}},
	}, Config{})

	ctx := context.Background()
	assert.ErrorIs(t, r.Stop(ctx), ErrNotRunning)
	require.NoError(t, r.Start(ctx))
	assert.ErrorIs(t, r.Start(ctx), ErrAlreadyRunning)

	require.Eventually(t, func() bool { return r.History().Len() > 0 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, r.Stop(ctx))
	assert.False(t, r.Status().Running)
	assert.False(t, dev.Streaming())

	// 停止后可以再次启动
	require.NoError(t, r.Start(ctx))
	require.NoError(t, r.Stop(ctx))
}

func TestRunner_Errors(t *testing.T) {
	tests := []struct {
		name    string
		script  *simulator.Script
		cfg     Config
		wantErr error
	}{
		{
			name: "连续校验失败超过上限",
			script: &simulator.Script{
				Model:  "evo64px",
				Loop:   true,
				Frames: []simulator.FrameSpec{{Range: &simulator.RangeSpec{Fill: 1200}, Corrupt: true}},
			},
			cfg:     Config{MaxConsecutiveErrors: 3},
			wantErr: evo.ErrChecksumMismatch,
		},
		{
			name:    "不支持数据流",
			script:  &simulator.Script{Model: "multiflex"},
			wantErr: evo.ErrStreamingUnsupported,
		},
		{
			name: "激活被拒绝",
			script: &simulator.Script{
				Model:   "evothermal",
				Replies: map[string]string{evo.CmdStreamStart: simulator.ReplyNack},
			},
			wantErr: evo.ErrNackReceived,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRunner(t, tt.script, tt.cfg)
			err := r.Run(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
			st := r.Status()
			assert.False(t, st.Running)
			assert.NotEmpty(t, st.ExitError)
		})
	}
}

func TestRunner_SendRecordsCommand(t *testing.T) {
	sink := newMemSink("mem")
	r, _ := newRunner(t, &simulator.Script{Model: "evomini"}, Config{}, sink)

	ex, err := r.Send(context.Background(), evo.CmdLongRange)
	require.NoError(t, err)
	assert.Equal(t, driver.StateAcked, ex.State)

	_, err = r.Send(context.Background(), "warp_drive")
	assert.ErrorIs(t, err, evo.ErrUnknownCommand)
	assert.Len(t, sink.commands, 1)
}

func TestRunner_SendLogsRecordFailure(t *testing.T) {
	dev, err := simulator.New(&simulator.Script{Model: "evomini", ReadTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	sensor, err := driver.New(dev, driver.Config{Model: "evomini"}, nil, nil)
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	sink := newMemSink("db")
	sink.recFail = errors.New("connection refused")
	pub := NewPublisher(PublisherConfig{}, nil, nil, sink)
	r := NewRunner(sensor, pub, NewHistory(8), Config{}, zap.New(core))

	ex, err := r.Send(context.Background(), evo.CmdLongRange)
	require.NoError(t, err)
	assert.Equal(t, driver.StateAcked, ex.State)

	entries := logs.FilterMessage("command record failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, ex.ID, fields["exchange_id"])
	assert.Equal(t, evo.CmdLongRange, fields["command"])
	assert.Contains(t, fields["error"], "connection refused")
}
