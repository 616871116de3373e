package driver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
)

// Guard 通道独占锁（容量为1的信号量）。
// 一次持有覆盖一个完整的通道操作：读一帧，或一次命令写入加ACK读取。
type Guard struct {
	sem           chan struct{}
	timeout       time.Duration
	holder        atomic.Value // string
	acquiredCount atomic.Int64
	timeoutCount  atomic.Int64
}

// DefaultLockTimeout 默认的获取超时
const DefaultLockTimeout = 2 * time.Second

// NewGuard 创建独占锁
// timeout: 获取锁的最长等待时间
func NewGuard(timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	g := &Guard{
		sem:     make(chan struct{}, 1),
		timeout: timeout,
	}
	g.holder.Store("")
	return g
}

// Acquire 获取锁，等待超过 timeout 返回 ErrLockTimeout。
// 调用方 ctx 先结束时返回 ctx.Err()，不计入超时统计。
func (g *Guard) Acquire(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case g.sem <- struct{}{}:
		g.holder.Store(op)
		g.acquiredCount.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		g.timeoutCount.Add(1)
		return fmt.Errorf("%w: %s waited %s (held by %s)", evo.ErrLockTimeout, op, g.timeout, g.Holder())
	}
}

// Release 释放锁
func (g *Guard) Release() {
	select {
	case <-g.sem:
		g.holder.Store("")
	default:
	}
}

// Do 在持锁状态下执行 fn，任何返回路径都会释放锁
func (g *Guard) Do(ctx context.Context, op string, fn func() error) error {
	if err := g.Acquire(ctx, op); err != nil {
		return err
	}
	defer g.Release()
	return fn()
}

// Holder 当前持有者的操作名，空表示空闲
func (g *Guard) Holder() string {
	return g.holder.Load().(string)
}

// Stats 获取统计信息
func (g *Guard) Stats() GuardStats {
	return GuardStats{
		Holder:       g.Holder(),
		Acquired:     g.acquiredCount.Load(),
		TimeoutTotal: g.timeoutCount.Load(),
	}
}

// GuardStats 独占锁统计信息
type GuardStats struct {
	Holder       string `json:"holder"`
	Acquired     int64  `json:"acquired"`
	TimeoutTotal int64  `json:"timeout_total"`
}
