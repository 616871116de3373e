package serialport

import (
	"errors"
	"time"
)

var (
	// ErrPortUnavailable 串口无法打开
	ErrPortUnavailable = errors.New("serial port unavailable")
	// ErrReadTimeout 在读超时内没有收到任何字节
	ErrReadTimeout = errors.New("serial read timeout")
	// ErrLineTooLong 在 MaxLineSize 字节内没有遇到分隔符
	ErrLineTooLong = errors.New("line exceeds max size")
	// ErrClosed 通道已关闭
	ErrClosed = errors.New("channel closed")
)

// Channel 一条物理字节流的阻塞读写原语。
// 实现不需要并发安全，调用方通过 driver.Guard 保证独占。
type Channel interface {
	// ReadExact 阻塞直到读满 n 字节；超时返回已读部分与 ErrReadTimeout
	ReadExact(n int) ([]byte, error)
	// ReadUntil 读到分隔符为止（包含分隔符）
	ReadUntil(delim byte) ([]byte, error)
	Write(p []byte) (int, error)
	// FlushInput 丢弃接收缓冲中尚未读取的数据
	FlushInput() error
	// FlushOutput 丢弃发送缓冲中尚未发出的数据
	FlushOutput() error
	Close() error
}

// Config 串口参数（数据位8、无校验、1停止位固定）
type Config struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baudRate"`
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	MaxLineSize int           `mapstructure:"maxLineSize"`
}

const (
	defaultBaudRate    = 115200
	defaultReadTimeout = time.Second
	defaultMaxLineSize = 4096
)

func (c Config) withDefaults() Config {
	if c.BaudRate <= 0 {
		c.BaudRate = defaultBaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = defaultMaxLineSize
	}
	return c
}
