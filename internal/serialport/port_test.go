package serialport

import (
	"errors"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Port: "/dev/ttyACM0"}.withDefaults()
	if cfg.BaudRate != 115200 {
		t.Errorf("期望默认波特率115200，实际: %d", cfg.BaudRate)
	}
	if cfg.ReadTimeout != time.Second {
		t.Errorf("期望默认读超时1s，实际: %s", cfg.ReadTimeout)
	}
	if cfg.MaxLineSize != 4096 {
		t.Errorf("期望默认行长4096，实际: %d", cfg.MaxLineSize)
	}

	custom := Config{BaudRate: 921600, ReadTimeout: 50 * time.Millisecond, MaxLineSize: 512}.withDefaults()
	if custom.BaudRate != 921600 || custom.ReadTimeout != 50*time.Millisecond || custom.MaxLineSize != 512 {
		t.Errorf("自定义参数被覆盖: %+v", custom)
	}
}

func TestOpen_Unavailable(t *testing.T) {
	_, err := Open(Config{Port: "/dev/evo-gateway-missing-port"})
	if !errors.Is(err, ErrPortUnavailable) {
		t.Fatalf("期望 ErrPortUnavailable，实际: %v", err)
	}
}
