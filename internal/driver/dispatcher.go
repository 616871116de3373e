package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"github.com/taoyao-code/evo-gateway/internal/serialport"
	"go.uber.org/zap"
)

// AckState 命令交互状态
type AckState int32

const (
	StateIdle AckState = iota
	StateSending
	StateAwaitingAckHeader
	StateAwaitingAckBody
	StateAcked
	StateNacked
	StateChecksumError
	StateTimedOut
	StateFailed
)

func (s AckState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingAckHeader:
		return "awaiting_ack_header"
	case StateAwaitingAckBody:
		return "awaiting_ack_body"
	case StateAcked:
		return "acked"
	case StateNacked:
		return "nacked"
	case StateChecksumError:
		return "checksum_error"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText 以名称输出
func (s AckState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText 按名称解析
func (s *AckState) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown ack state %q", b)
}

// DispatcherConfig ACK等待上限
type DispatcherConfig struct {
	AckMaxDiscard int           `mapstructure:"ackMaxDiscard"` // 等待帧头时最多丢弃的字节数
	AckTimeout    time.Duration `mapstructure:"ackTimeout"`    // 等待帧头的总时长
}

const (
	defaultAckMaxDiscard = 1024
	defaultAckTimeout    = 2 * time.Second
)

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.AckMaxDiscard <= 0 {
		c.AckMaxDiscard = defaultAckMaxDiscard
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = defaultAckTimeout
	}
	return c
}

// Exchange 一次命令交互的记录
type Exchange struct {
	ID           string        `json:"id"`
	Model        evo.Model     `json:"model"`
	Command      string        `json:"command"`
	Opcode       []byte        `json:"opcode"`
	State        AckState      `json:"state"`
	Ack          *evo.Ack      `json:"ack,omitempty"`
	Discarded    int           `json:"discarded"`
	DrainedLines int           `json:"drained_lines"`
	StartedAt    time.Time     `json:"started_at"`
	Elapsed      time.Duration `json:"elapsed"`
	Error        string        `json:"error,omitempty"`
}

// Dispatcher 驱动命令→ACK/NACK交互。整个写入加应答读取在 Guard 内完成，不自动重试。
type Dispatcher struct {
	ch     serialport.Channel
	guard  *Guard
	model  evo.Model
	format evo.AckFormat
	cfg    DispatcherConfig
	log    *zap.Logger
	obs    Observer
	state  atomic.Int32

	mu   sync.Mutex
	last *Exchange
}

// NewDispatcher 创建命令分发器
func NewDispatcher(ch serialport.Channel, guard *Guard, model evo.Model, cfg DispatcherConfig, log *zap.Logger, obs Observer) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Dispatcher{
		ch:     ch,
		guard:  guard,
		model:  model,
		format: evo.AckFormatFor(model),
		cfg:    cfg.withDefaults(),
		log:    log.Named("dispatcher"),
		obs:    obs,
	}
}

// State 当前状态，空闲时为 StateIdle
func (d *Dispatcher) State() AckState { return AckState(d.state.Load()) }

// Last 最近一次交互
func (d *Dispatcher) Last() *Exchange {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil
	}
	cp := *d.last
	return &cp
}

func (d *Dispatcher) setState(ex *Exchange, s AckState) {
	ex.State = s
	d.state.Store(int32(s))
	d.log.Debug("ack state",
		zap.String("exchange_id", ex.ID),
		zap.String("command", ex.Command),
		zap.Stringer("state", s))
}

// Send 发送命令并等待应答。返回的 Exchange 总是非空。
// 失败时错误为 *evo.NackError、*evo.ChecksumError、ErrAckTimeout 或 ErrLockTimeout 之一（或通道错误）。
func (d *Dispatcher) Send(ctx context.Context, cmd evo.Command) (*Exchange, error) {
	ex := &Exchange{
		ID:        uuid.NewString(),
		Model:     d.model,
		Command:   cmd.Name(),
		Opcode:    cmd.Opcode(),
		State:     StateIdle,
		StartedAt: time.Now(),
	}

	var err error
	if cmd.Model() != d.model {
		err = fmt.Errorf("%w: %s is a %s command, channel speaks %s", evo.ErrUnknownCommand, cmd.Name(), cmd.Model(), d.model)
		ex.State = StateFailed
	} else {
		op := "command:" + cmd.Name()
		err = d.guard.Do(ctx, op, func() error {
			return d.exchange(ctx, ex)
		})
		if errors.Is(err, evo.ErrLockTimeout) {
			d.obs.LockTimeout(d.model, op)
		}
		if err != nil && ex.State == StateIdle {
			ex.State = StateFailed
		}
		d.state.Store(int32(StateIdle))
	}

	ex.Elapsed = time.Since(ex.StartedAt)
	result := ResultOf(err)
	d.obs.CommandResult(d.model, cmd.Name(), result, ex.Elapsed)

	fields := []zap.Field{
		zap.String("exchange_id", ex.ID),
		zap.String("model", string(d.model)),
		zap.String("command", cmd.Name()),
		zap.Stringer("state", ex.State),
		zap.Int("discarded", ex.Discarded),
		zap.Duration("elapsed", ex.Elapsed),
	}
	if err != nil {
		ex.Error = err.Error()
		d.log.Warn("command failed", append(fields, zap.Error(err))...)
	} else {
		d.log.Info("command acknowledged", fields...)
	}

	d.mu.Lock()
	d.last = ex
	d.mu.Unlock()
	return ex, err
}

// exchange 持锁执行：写操作码 → 寻找ACK帧头 → 读取剩余字节 → CRC-8 → 状态字节
func (d *Dispatcher) exchange(ctx context.Context, ex *Exchange) error {
	d.setState(ex, StateSending)
	if err := d.ch.FlushOutput(); err != nil {
		d.setState(ex, StateFailed)
		return fmt.Errorf("flush output: %w", err)
	}
	n, err := d.ch.Write(ex.Opcode)
	if err != nil {
		d.setState(ex, StateFailed)
		return fmt.Errorf("write %s: %w", ex.Command, err)
	}
	if n != len(ex.Opcode) {
		d.setState(ex, StateFailed)
		return fmt.Errorf("write %s: short write %d/%d", ex.Command, n, len(ex.Opcode))
	}

	d.setState(ex, StateAwaitingAckHeader)
	header, err := d.awaitHeader(ctx, ex)
	if err != nil {
		return err
	}

	d.setState(ex, StateAwaitingAckBody)
	body, err := d.ch.ReadExact(d.format.Size - len(header))
	if err != nil {
		return d.readFailed(ex, fmt.Errorf("ack body: %w", err))
	}
	frame := append(header, body...)

	ack, err := evo.ParseAck(d.format, frame)
	if err != nil {
		d.setState(ex, StateChecksumError)
		return err
	}
	ex.Ack = ack
	if !ack.Acked() {
		d.setState(ex, StateNacked)
		return &evo.NackError{Command: ex.Command, Status: ack.Status}
	}
	d.setState(ex, StateAcked)
	return nil
}

// awaitHeader 逐字节寻找ACK帧头，受丢弃字节数与总时长双重限制。
// 64px 每丢弃一个字节同时排空一整行数据流。
func (d *Dispatcher) awaitHeader(ctx context.Context, ex *Exchange) ([]byte, error) {
	hlen := len(d.format.Header)
	deadline := time.Now().Add(d.cfg.AckTimeout)

	window, err := d.ch.ReadExact(hlen)
	if err != nil {
		return nil, d.readFailed(ex, err)
	}
	for !bytes.Equal(window, d.format.Header) {
		switch {
		case ex.Discarded >= d.cfg.AckMaxDiscard:
			return nil, d.timedOut(ex, fmt.Errorf("no ack header within %d bytes", ex.Discarded))
		case time.Now().After(deadline):
			return nil, d.timedOut(ex, fmt.Errorf("no ack header within %s", d.cfg.AckTimeout))
		case ctx.Err() != nil:
			d.setState(ex, StateFailed)
			return nil, fmt.Errorf("await ack for %s: %w", ex.Command, ctx.Err())
		}
		ex.Discarded++

		if d.format.DrainLine {
			if _, err := d.ch.ReadUntil(evo.LineDelimiter); err != nil && !errors.Is(err, serialport.ErrLineTooLong) {
				return nil, d.readFailed(ex, fmt.Errorf("drain line: %w", err))
			}
			ex.DrainedLines++
			if window, err = d.ch.ReadExact(hlen); err != nil {
				return nil, d.readFailed(ex, err)
			}
			continue
		}

		b, err := d.ch.ReadExact(1)
		if err != nil {
			return nil, d.readFailed(ex, err)
		}
		window = append(window[1:], b[0])
	}
	return window, nil
}

// timedOut 等待ACK超出丢弃字节数或总时长上限
func (d *Dispatcher) timedOut(ex *Exchange, cause error) error {
	d.setState(ex, StateTimedOut)
	return fmt.Errorf("%w: %s: %w", evo.ErrAckTimeout, ex.Command, cause)
}

// readFailed 读超时映射为 ErrAckTimeout；其他通道错误保留原错误，状态记为 StateFailed
func (d *Dispatcher) readFailed(ex *Exchange, err error) error {
	if errors.Is(err, serialport.ErrReadTimeout) {
		return d.timedOut(ex, err)
	}
	d.setState(ex, StateFailed)
	return fmt.Errorf("read ack for %s: %w", ex.Command, err)
}
