package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taoyao-code/evo-gateway/internal/driver"
	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"github.com/taoyao-code/evo-gateway/internal/serialport"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyRunning 采集循环已在运行
	ErrAlreadyRunning = errors.New("stream already running")
	// ErrNotRunning 采集循环未运行
	ErrNotRunning = errors.New("stream not running")
)

// Config 采集循环配置
type Config struct {
	RetryBackoff         time.Duration // 帧失步或锁等待超时后的等待
	MaxConsecutiveErrors int           // 连续可恢复错误上限，0 表示不限
	DeactivateTimeout    time.Duration
}

// Status 采集循环状态
type Status struct {
	Running   bool                    `json:"running"`
	SessionID string                  `json:"session_id,omitempty"`
	StartedAt *time.Time              `json:"started_at,omitempty"`
	Frames    uint64                  `json:"frames"`
	Errors    uint64                  `json:"errors"`
	LastError string                  `json:"last_error,omitempty"`
	ExitError string                  `json:"exit_error,omitempty"` // 循环因不可恢复错误退出
	Sinks     map[string]BreakerStats `json:"sinks,omitempty"`
}

// Runner 采集循环：清空输入、激活设备、逐帧读取并发布，退出时停止输出。
// 同一时刻最多一个循环在运行；命令可在循环运行期间通过 Send 发送。
type Runner struct {
	sensor  driver.Sensor
	pub     *Publisher
	history *History
	cfg     Config
	log     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	status Status
}

// NewRunner 创建采集循环
func NewRunner(sensor driver.Sensor, pub *Publisher, history *History, cfg Config, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if pub == nil {
		pub = NewPublisher(PublisherConfig{}, log, nil)
	}
	if history == nil {
		history = NewHistory(1)
	}
	if cfg.DeactivateTimeout <= 0 {
		cfg.DeactivateTimeout = 3 * time.Second
	}
	return &Runner{
		sensor:  sensor,
		pub:     pub,
		history: history,
		cfg:     cfg,
		log:     log.Named("stream"),
	}
}

// Sensor 底层传感器
func (r *Runner) Sensor() driver.Sensor { return r.sensor }

// History 最近测量缓冲
func (r *Runner) History() *History { return r.history }

// Run 在当前 goroutine 运行采集循环，直到 ctx 取消或出现不可恢复错误。
// ctx 取消视为正常结束，返回 nil。
func (r *Runner) Run(ctx context.Context) error {
	ctx, done, err := r.begin(ctx)
	if err != nil {
		return err
	}
	return r.run(ctx, done)
}

// Start 在后台启动采集循环。循环生命周期不跟随 ctx 的取消，由 Stop 结束。
func (r *Runner) Start(ctx context.Context) error {
	ctx, done, err := r.begin(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	go func() { _ = r.run(ctx, done) }()
	return nil
}

// Stop 请求停止并等待循环退出（含停止输出命令）
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return ErrNotRunning
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send 发送模式命令并记录交互。记录失败只写日志，不改变命令结果。
func (r *Runner) Send(ctx context.Context, name string) (*driver.Exchange, error) {
	ex, err := r.sensor.Send(ctx, name)
	if ex != nil {
		if recErr := r.pub.RecordCommand(ctx, ex); recErr != nil {
			r.log.Warn("command record failed",
				zap.String("exchange_id", ex.ID),
				zap.String("command", ex.Command),
				zap.Error(recErr))
		}
	}
	return ex, err
}

// Status 当前状态
func (r *Runner) Status() Status {
	r.mu.Lock()
	st := r.status
	r.mu.Unlock()
	st.Sinks = r.pub.Sinks()
	return st
}

func (r *Runner) begin(parent context.Context) (context.Context, chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil, nil, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(parent)
	now := time.Now()
	r.cancel = cancel
	r.done = make(chan struct{})
	r.status = Status{Running: true, SessionID: uuid.NewString(), StartedAt: &now}
	return ctx, r.done, nil
}

func (r *Runner) run(ctx context.Context, done chan struct{}) (err error) {
	r.mu.Lock()
	log := r.log.With(zap.String("session_id", r.status.SessionID), zap.String("model", string(r.sensor.Model())))
	r.mu.Unlock()

	log.Info("stream started")
	defer func() {
		r.mu.Lock()
		r.cancel()
		r.cancel = nil
		r.status.Running = false
		if err != nil {
			r.status.ExitError = err.Error()
		}
		r.mu.Unlock()
		close(done)

		if err != nil {
			log.Error("stream aborted", zap.Error(err))
		} else {
			log.Info("stream stopped")
		}
	}()

	return r.loop(ctx, log)
}

func (r *Runner) loop(ctx context.Context, log *zap.Logger) error {
	if err := r.sensor.Activate(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	defer r.deactivate(log)

	consecutive := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		m, err := r.sensor.Next(ctx)
		if err == nil {
			consecutive = 0
			r.history.Add(m)
			r.count(nil)
			_ = r.pub.Publish(ctx, m)
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if !retryable(err) {
			r.count(err)
			return err
		}

		consecutive++
		r.count(err)
		if errors.Is(err, serialport.ErrReadTimeout) {
			log.Debug("no frame within read timeout", zap.Int("consecutive", consecutive))
		} else {
			log.Warn("frame dropped", zap.Error(err), zap.Int("consecutive", consecutive))
		}
		if r.cfg.MaxConsecutiveErrors > 0 && consecutive >= r.cfg.MaxConsecutiveErrors {
			return fmt.Errorf("%d consecutive read errors: %w", consecutive, err)
		}
		if errors.Is(err, evo.ErrFrameSyncLost) || errors.Is(err, evo.ErrLockTimeout) {
			if !sleep(ctx, r.cfg.RetryBackoff) {
				return nil
			}
		}
	}
}

func (r *Runner) deactivate(log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.DeactivateTimeout)
	defer cancel()
	if err := r.sensor.Deactivate(ctx); err != nil {
		log.Warn("deactivate failed", zap.Error(err))
	}
}

func (r *Runner) count(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		r.status.Frames++
		return
	}
	r.status.Errors++
	r.status.LastError = err.Error()
}

// retryable 数据流路径上可以继续读取的错误
func retryable(err error) bool {
	return evo.IsRecoverable(err) || errors.Is(err, serialport.ErrReadTimeout)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
