package simulator

import (
	"bytes"
	"sync"
	"time"

	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"github.com/taoyao-code/evo-gateway/internal/serialport"
)

// SchemePrefix 以此前缀命名的串口打开模拟设备，其余部分为脚本路径
const SchemePrefix = "sim://"

const (
	defaultReadTimeout = 200 * time.Millisecond
	maxFillsPerRead    = 64
)

// Device 内存中的模拟传感器，实现 serialport.Channel。
// 收到已知命令时按脚本回复应答；处于输出状态时按需播放帧序列。
type Device struct {
	mu      sync.Mutex
	cond    *sync.Cond
	model   evo.Model
	ack     evo.AckFormat
	script  Script
	frames  [][]byte
	next    int
	rx      []byte
	written []byte
	stream  bool
	closed  bool
	timeout time.Duration
}

// New 按脚本创建模拟设备
func New(s *Script) (*Device, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	model, _ := evo.ParseModel(s.Model)
	d := &Device{
		model:   model,
		ack:     evo.AckFormatFor(model),
		script:  *s,
		stream:  s.Streaming,
		timeout: s.ReadTimeout,
	}
	if d.timeout <= 0 {
		d.timeout = defaultReadTimeout
	}
	for _, f := range s.Frames {
		b, _ := f.Bytes()
		d.frames = append(d.frames, b)
	}
	d.cond = sync.NewCond(&d.mu)
	return d, nil
}

// NewModel 创建一个没有帧序列、所有命令都回复ACK的设备
func NewModel(model evo.Model) *Device {
	d, _ := New(&Script{Model: string(model)})
	return d
}

// Open 加载脚本并创建设备
func Open(path string) (*Device, error) {
	s, err := LoadScript(path)
	if err != nil {
		return nil, err
	}
	return New(s)
}

// Model 模拟的型号
func (d *Device) Model() evo.Model { return d.model }

// Feed 直接追加待读取字节
func (d *Device) Feed(b []byte) {
	d.mu.Lock()
	d.rx = append(d.rx, b...)
	d.mu.Unlock()
	d.cond.Broadcast()
}

// SetReply 修改某条命令的应答方式
func (d *Device) SetReply(command, reply string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.script.Replies == nil {
		d.script.Replies = map[string]string{}
	}
	d.script.Replies[command] = reply
}

// Streaming 当前是否在输出数据流
func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream
}

// Written 主机写入的全部字节
func (d *Device) Written() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.written...)
}

// Pending 尚未被读取的字节数
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rx)
}

// fill 输出状态下追加下一帧，返回是否追加成功
func (d *Device) fill() bool {
	if !d.stream || len(d.frames) == 0 {
		return false
	}
	if d.next >= len(d.frames) {
		if !d.script.Loop {
			return false
		}
		d.next = 0
	}
	d.rx = append(d.rx, d.frames[d.next]...)
	d.next++
	return true
}

// waitFor 在持锁状态下等待 ready 成立，超时返回 false
func (d *Device) waitFor(ready func() bool) bool {
	deadline := time.Now().Add(d.timeout)
	fills := 0
	for !ready() {
		if d.closed {
			return false
		}
		if fills < maxFillsPerRead && d.fill() {
			fills++
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		t := time.AfterFunc(remaining, d.cond.Broadcast)
		d.cond.Wait()
		t.Stop()
	}
	return true
}

// ReadExact 实现 serialport.Channel
func (d *Device) ReadExact(n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, serialport.ErrClosed
	}
	ok := d.waitFor(func() bool { return len(d.rx) >= n })
	if d.closed {
		return nil, serialport.ErrClosed
	}
	if !ok {
		out := d.rx
		d.rx = nil
		return out, serialport.ErrReadTimeout
	}
	out := append([]byte(nil), d.rx[:n]...)
	d.rx = d.rx[n:]
	return out, nil
}

// ReadUntil 实现 serialport.Channel
func (d *Device) ReadUntil(delim byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, serialport.ErrClosed
	}
	ok := d.waitFor(func() bool { return bytes.IndexByte(d.rx, delim) >= 0 })
	if d.closed {
		return nil, serialport.ErrClosed
	}
	if !ok {
		out := d.rx
		d.rx = nil
		return out, serialport.ErrReadTimeout
	}
	i := bytes.IndexByte(d.rx, delim) + 1
	out := append([]byte(nil), d.rx[:i]...)
	d.rx = d.rx[i:]
	return out, nil
}

// Write 记录写入并对已知命令作出应答
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, serialport.ErrClosed
	}
	d.written = append(d.written, p...)
	if cmd, ok := d.match(p); ok {
		d.respond(cmd, p)
	}
	d.mu.Unlock()
	d.cond.Broadcast()
	return len(p), nil
}

func (d *Device) match(p []byte) (evo.Command, bool) {
	for _, c := range evo.Commands(d.model) {
		if bytes.Equal(c.Opcode(), p) {
			return c, true
		}
	}
	return evo.Command{}, false
}

// respond 在持锁状态下生成应答
func (d *Device) respond(cmd evo.Command, opcode []byte) {
	reply := d.script.Replies[cmd.Name()]
	if reply == "" {
		reply = ReplyAck
	}
	if reply == ReplySilent {
		return
	}
	if d.script.AckGarbage > 0 {
		d.rx = append(d.rx, Garbage(d.script.AckGarbage)...)
	}
	echo := byte(0)
	if len(opcode) > 1 {
		echo = opcode[1]
	}
	status := byte(0)
	if reply == ReplyNack {
		status = evo.MultiFlexAckStatusN
	}
	ack := evo.EncodeAck(d.ack, echo, status)
	if reply == ReplyBadCRC {
		ack[len(ack)-1] ^= 0xFF
	}
	d.rx = append(d.rx, ack...)

	if reply != ReplyAck {
		return
	}
	switch cmd.Name() {
	case evo.CmdStreamStart, evo.CmdBinaryMode:
		d.stream = true
	case evo.CmdStreamStop:
		d.stream = false
	}
}

// FlushInput 丢弃未读数据
func (d *Device) FlushInput() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return serialport.ErrClosed
	}
	d.rx = nil
	return nil
}

// FlushOutput 模拟设备没有发送缓冲
func (d *Device) FlushOutput() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return serialport.ErrClosed
	}
	return nil
}

// Close 关闭设备并唤醒所有等待中的读取
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()
	return nil
}

var _ serialport.Channel = (*Device)(nil)
