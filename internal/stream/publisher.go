package stream

import (
	"context"
	"errors"
	"time"

	"github.com/taoyao-code/evo-gateway/internal/driver"
	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"go.uber.org/zap"
)

// 下游发布结果
const (
	SinkOK      = "ok"
	SinkFailed  = "error"
	SinkSkipped = "skipped"
)

// PublishError 单个下游的发布失败
type PublishError struct {
	Sink string
	Err  error
}

func (e *PublishError) Error() string { return "sink " + e.Sink + ": " + e.Err.Error() }

func (e *PublishError) Unwrap() error { return e.Err }

// Sink 测量结果的下游消费者
type Sink interface {
	Name() string
	Publish(ctx context.Context, m *evo.Measurement) error
}

// CommandRecorder 可选接口：记录命令交互
type CommandRecorder interface {
	RecordCommand(ctx context.Context, ex *driver.Exchange) error
}

// Observer 下游发布指标回调
type Observer interface {
	SinkResult(sink, result string)
}

type nopObserver struct{}

func (nopObserver) SinkResult(string, string) {}

// PublisherConfig 发布器配置
type PublisherConfig struct {
	Timeout          time.Duration // 单个下游的发布超时
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

type guardedSink struct {
	sink    Sink
	breaker *Breaker
}

// Publisher 把测量结果依次交给各下游，每个下游由独立熔断器保护，
// 单个下游失败不影响其他下游与采集循环。
type Publisher struct {
	sinks   []guardedSink
	timeout time.Duration
	log     *zap.Logger
	obs     Observer
}

// NewPublisher 创建发布器
func NewPublisher(cfg PublisherConfig, log *zap.Logger, obs Observer, sinks ...Sink) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	p := &Publisher{timeout: cfg.Timeout, log: log.Named("publisher"), obs: obs}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		name := s.Name()
		br := NewBreaker(cfg.BreakerThreshold, cfg.BreakerTimeout)
		br.OnStateChange(func(from, to BreakerState) {
			p.log.Warn("sink breaker state changed",
				zap.String("sink", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		})
		p.sinks = append(p.sinks, guardedSink{sink: s, breaker: br})
	}
	return p
}

// Publish 发布一条测量；返回各下游错误的合并结果（仅用于诊断）
func (p *Publisher) Publish(ctx context.Context, m *evo.Measurement) error {
	var errs []error
	for _, gs := range p.sinks {
		err := p.call(ctx, gs, func(ctx context.Context) error {
			return gs.sink.Publish(ctx, m)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordCommand 把命令交互交给实现了 CommandRecorder 的下游
func (p *Publisher) RecordCommand(ctx context.Context, ex *driver.Exchange) error {
	if ex == nil {
		return nil
	}
	var errs []error
	for _, gs := range p.sinks {
		rec, ok := gs.sink.(CommandRecorder)
		if !ok {
			continue
		}
		err := p.call(ctx, gs, func(ctx context.Context) error {
			return rec.RecordCommand(ctx, ex)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) call(ctx context.Context, gs guardedSink, fn func(context.Context) error) error {
	name := gs.sink.Name()
	err := gs.breaker.Call(func() error {
		cctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return fn(cctx)
	})
	switch {
	case err == nil:
		p.obs.SinkResult(name, SinkOK)
		return nil
	case errors.Is(err, ErrBreakerOpen):
		p.obs.SinkResult(name, SinkSkipped)
	default:
		p.obs.SinkResult(name, SinkFailed)
		p.log.Warn("sink publish failed", zap.String("sink", name), zap.Error(err))
	}
	return &PublishError{Sink: name, Err: err}
}

// Sinks 下游名称与熔断器状态
func (p *Publisher) Sinks() map[string]BreakerStats {
	out := make(map[string]BreakerStats, len(p.sinks))
	for _, gs := range p.sinks {
		out[gs.sink.Name()] = gs.breaker.Stats()
	}
	return out
}
