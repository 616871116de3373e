package stream

import (
	"sync"

	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
)

// History 最近 N 条测量的环形缓冲，供 HTTP 查询最新值
type History struct {
	mu    sync.RWMutex
	buf   []*evo.Measurement
	next  int
	count int
}

// NewHistory 创建容量为 size 的缓冲
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{buf: make([]*evo.Measurement, size)}
}

// Add 追加一条测量，满时覆盖最旧的一条
func (h *History) Add(m *evo.Measurement) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = m
	h.next = (h.next + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
}

// Latest 最新一条，没有时返回 nil
func (h *History) Latest() *evo.Measurement {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return nil
	}
	return h.buf[(h.next-1+len(h.buf))%len(h.buf)]
}

// Recent 按时间倒序返回最多 n 条
func (h *History) Recent(n int) []*evo.Measurement {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > h.count {
		n = h.count
	}
	out := make([]*evo.Measurement, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, h.buf[(h.next-i+len(h.buf))%len(h.buf)])
	}
	return out
}

// Len 当前条数
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
