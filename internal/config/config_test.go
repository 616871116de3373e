package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
serial:
  port: sim://testdata/evo64px.yaml
  readTimeout: 250ms
sensor:
  model: evo64px
  rangeMaskBits: 12
  sync:
    maxDiscard: 512
stream:
  historySize: 16
api:
  apiKeys: ["k1", "k2"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "sim://testdata/evo64px.yaml", cfg.Serial.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Serial.ReadTimeout)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 12, cfg.Sensor.RangeMaskBits)
	assert.Equal(t, 512, cfg.Sensor.Sync.MaxDiscard)
	assert.Equal(t, 16, cfg.Sensor.Sync.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Sensor.Dispatch.AckTimeout)
	assert.Equal(t, 16, cfg.Stream.HistorySize)
	assert.Equal(t, []string{"k1", "k2"}, cfg.API.APIKeys)
	assert.Equal(t, "evo-gateway", cfg.App.Name)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EVO_SENSOR_MODEL", "evomini")
	t.Setenv("EVO_SERIAL_BAUDRATE", "921600")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "evomini", cfg.Sensor.Model)
	assert.Equal(t, 921600, cfg.Serial.BaudRate)
}

func TestLoad_ConfigFromEnvPath(t *testing.T) {
	t.Setenv("EVO_CONFIG", writeConfig(t, sampleConfig))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Sensor.RangeMaskBits)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"非法掩码位宽", "sensor:\n  rangeMaskBits: 13\n"},
		{"历史条数为零", "stream:\n  historySize: 0\n"},
		{"空串口", "serial:\n  port: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load("../../configs/example.yaml")
	require.NoError(t, err)
	assert.Equal(t, "evo64px", cfg.Sensor.Model)
	assert.Equal(t, "sim://configs/sim/evo64px.yaml", cfg.Serial.Port)
	assert.Equal(t, 14, cfg.Sensor.RangeMaskBits)
	assert.Equal(t, 128, cfg.Stream.HistorySize)
	assert.True(t, cfg.API.Swagger)
}
