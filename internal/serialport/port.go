package serialport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"go.bug.st/serial"
)

// Port 基于 go.bug.st/serial 的 Channel 实现
type Port struct {
	name   string
	port   serial.Port
	reader *bufio.Reader
	src    *timeoutReader
	cfg    Config
	closed atomic.Bool
}

// timeoutReader 把 serial 的 (0, nil) 超时返回转换成 ErrReadTimeout，
// 否则 bufio 会反复重试直到 io.ErrNoProgress。
type timeoutReader struct {
	port serial.Port
}

func (r *timeoutReader) Read(p []byte) (int, error) {
	n, err := r.port.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, ErrReadTimeout
	}
	return n, nil
}

// Open 打开串口：8数据位、无校验、1停止位
func Open(cfg Config) (*Port, error) {
	cfg = cfg.withDefaults()
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPortUnavailable, cfg.Port, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("%w: set read timeout on %s: %v", ErrPortUnavailable, cfg.Port, err)
	}
	src := &timeoutReader{port: p}
	return &Port{
		name:   cfg.Port,
		port:   p,
		src:    src,
		reader: bufio.NewReaderSize(src, cfg.MaxLineSize),
		cfg:    cfg,
	}, nil
}

// Name 串口名
func (p *Port) Name() string { return p.name }

// ReadExact 实现 Channel
func (p *Port) ReadExact(n int) ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	buf := make([]byte, n)
	got, err := io.ReadFull(p.reader, buf)
	if err != nil {
		return buf[:got], p.mapErr(err)
	}
	return buf, nil
}

// ReadUntil 实现 Channel，单行最长 MaxLineSize 字节
func (p *Port) ReadUntil(delim byte) ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	line := make([]byte, 0, 512)
	for len(line) < p.cfg.MaxLineSize {
		b, err := p.reader.ReadByte()
		if err != nil {
			return line, p.mapErr(err)
		}
		line = append(line, b)
		if b == delim {
			return line, nil
		}
	}
	return line, ErrLineTooLong
}

// Write 实现 Channel
func (p *Port) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	return p.port.Write(b)
}

// FlushInput 同时清空驱动缓冲与本地 bufio 缓冲
func (p *Port) FlushInput() error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.reader.Reset(p.src)
	return p.port.ResetInputBuffer()
}

// FlushOutput 实现 Channel
func (p *Port) FlushOutput() error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.port.ResetOutputBuffer()
}

// Close 关闭串口，可重复调用
func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.port.Close()
}

func (p *Port) mapErr(err error) error {
	switch {
	case errors.Is(err, ErrReadTimeout):
		return ErrReadTimeout
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return fmt.Errorf("%w: %v", ErrClosed, err)
	case p.closed.Load():
		return ErrClosed
	}
	var pe *serial.PortError
	if errors.As(err, &pe) && pe.Code() == serial.PortClosed {
		return ErrClosed
	}
	return err
}

// ListPorts 列出系统串口
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
