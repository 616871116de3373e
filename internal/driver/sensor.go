package driver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"github.com/taoyao-code/evo-gateway/internal/serialport"
	"go.uber.org/zap"
)

// Sensor 单个传感器通道。Next 与 Send 可以在不同 goroutine 并发调用，
// 二者通过 Guard 串行化，不会在字节级交错。
type Sensor interface {
	Model() evo.Model
	// Activate 清空输入缓冲并把设备切换到数据输出状态
	Activate(ctx context.Context) error
	// Deactivate 停止数据输出（型号支持时）
	Deactivate(ctx context.Context) error
	// Next 读取、校验并解码下一帧
	Next(ctx context.Context) (*evo.Measurement, error)
	// Send 按名称发送模式命令
	Send(ctx context.Context, name string) (*Exchange, error)
	Commands() []evo.Command
	Stats() Stats
	Close() error
}

// Config 传感器驱动配置
type Config struct {
	Model           string           `mapstructure:"model"`
	RangeMaskBits   int              `mapstructure:"rangeMaskBits"`   // 64px：12 或 14
	MinGridSum      int              `mapstructure:"minGridSum"`      // 64px：数值和不大于此值的帧丢弃
	PixelMode       string           `mapstructure:"pixelMode"`       // Mini：启动时设置的像素模式，空表示不设置
	RangeBand       string           `mapstructure:"rangeBand"`       // Mini：short | long，空表示不设置
	FlushAfterFrame bool             `mapstructure:"flushAfterFrame"` // Thermal：每帧后清空输入缓冲
	LockTimeout     time.Duration    `mapstructure:"lockTimeout"`
	Sync            SyncConfig       `mapstructure:"sync"`
	Dispatch        DispatcherConfig `mapstructure:"dispatch"`
}

// DefaultMinGridSum 64px 退化帧阈值
const DefaultMinGridSum = 64

// Stats 传感器统计信息
type Stats struct {
	Model       evo.Model  `json:"model"`
	Frames      uint64     `json:"frames"`
	PixelMode   string     `json:"pixel_mode,omitempty"`
	State       AckState   `json:"dispatcher_state"`
	Sync        SyncStats  `json:"sync"`
	Guard       GuardStats `json:"guard"`
	LastCommand *Exchange  `json:"last_command,omitempty"`
}

// New 按型号创建传感器驱动
func New(ch serialport.Channel, cfg Config, log *zap.Logger, obs Observer) (Sensor, error) {
	model, err := evo.ParseModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	b := newBase(ch, model, cfg, log, obs)

	switch model {
	case evo.ModelEvo64px:
		bits := cfg.RangeMaskBits
		if bits == 0 {
			bits = int(evo.Mask14Bit)
		}
		width, err := evo.ParseMaskWidth(bits)
		if err != nil {
			return nil, err
		}
		minSum := cfg.MinGridSum
		if minSum <= 0 {
			minSum = DefaultMinGridSum
		}
		return &Evo64px{base: b, width: width, minSum: minSum}, nil
	case evo.ModelEvoMini:
		pixel, err := evo.ParsePixelMode(cfg.PixelMode)
		if err != nil {
			return nil, err
		}
		band, err := rangeBandCommand(cfg.RangeBand)
		if err != nil {
			return nil, err
		}
		m := &Mini{base: b, startPixel: pixel, band: band}
		b.onResult = m.onCommandResult
		return m, nil
	case evo.ModelEvoThermal:
		return &Thermal{base: b, flushAfterFrame: cfg.FlushAfterFrame}, nil
	case evo.ModelMultiFlex:
		return &MultiFlex{base: b}, nil
	}
	return nil, fmt.Errorf("unsupported sensor model %q", cfg.Model)
}

// base 各型号共用的通道、锁、同步器与分发器
type base struct {
	model evo.Model
	ch    serialport.Channel
	guard *Guard
	sync  *Synchronizer
	disp  *Dispatcher
	log   *zap.Logger
	obs   Observer
	seq   atomic.Uint64

	// onResult 每次命令交互结束后回调，err 为 Send 的返回值
	onResult func(cmd evo.Command, err error)
}

func newBase(ch serialport.Channel, model evo.Model, cfg Config, log *zap.Logger, obs Observer) *base {
	if log == nil {
		log = zap.NewNop()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	log = log.With(zap.String("model", string(model)))
	guard := NewGuard(cfg.LockTimeout)
	return &base{
		model: model,
		ch:    ch,
		guard: guard,
		sync:  NewSynchronizer(ch, cfg.Sync, log),
		disp:  NewDispatcher(ch, guard, model, cfg.Dispatch, log, obs),
		log:   log,
		obs:   obs,
	}
}

// Model 实现 Sensor
func (b *base) Model() evo.Model { return b.model }

// Commands 实现 Sensor
func (b *base) Commands() []evo.Command { return evo.Commands(b.model) }

// Send 实现 Sensor
func (b *base) Send(ctx context.Context, name string) (*Exchange, error) {
	cmd, err := evo.LookupCommand(b.model, name)
	if err != nil {
		return nil, err
	}
	ex, err := b.disp.Send(ctx, cmd)
	if b.onResult != nil {
		b.onResult(cmd, err)
	}
	return ex, err
}

// Close 实现 Sensor
func (b *base) Close() error { return b.ch.Close() }

// Stats 实现 Sensor
func (b *base) Stats() Stats {
	return Stats{
		Model:       b.model,
		Frames:      b.seq.Load(),
		State:       b.disp.State(),
		Sync:        b.sync.Stats(),
		Guard:       b.guard.Stats(),
		LastCommand: b.disp.Last(),
	}
}

func (b *base) flushInput(ctx context.Context) error {
	return b.guard.Do(ctx, "flush_input", b.ch.FlushInput)
}

// readFrame 持锁读取一帧；read 返回解码结果与丢弃字节数
func (b *base) readFrame(ctx context.Context, read func() (*evo.Measurement, int, error)) (*evo.Measurement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		m         *evo.Measurement
		discarded int
	)
	err := b.guard.Do(ctx, "read_frame", func() error {
		var err error
		m, discarded, err = read()
		return err
	})
	if errors.Is(err, evo.ErrLockTimeout) {
		b.obs.LockTimeout(b.model, "read_frame")
	}
	if discarded > 0 {
		b.obs.BytesDiscarded(b.model, discarded)
	}
	b.obs.FrameResult(b.model, ResultOf(err))
	if err != nil {
		return nil, err
	}
	m.Seq = b.seq.Add(1)
	m.Timestamp = time.Now()
	return m, nil
}

// activateWith 清空输入缓冲后依次发送命令，任一失败即返回
func (b *base) activateWith(ctx context.Context, names ...string) error {
	if err := b.flushInput(ctx); err != nil {
		return fmt.Errorf("flush input: %w", err)
	}
	for _, name := range names {
		if _, err := b.Send(ctx, name); err != nil {
			return fmt.Errorf("activate %s: %w", b.model, err)
		}
	}
	return nil
}
