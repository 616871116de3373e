package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/taoyao-code/evo-gateway/internal/metrics"
)

// NewMetrics 初始化注册表与传感器指标
func NewMetrics() (*prometheus.Registry, *metrics.SensorMetrics) {
	reg := metrics.NewRegistry()
	sm := metrics.NewSensorMetrics(reg)
	return reg, sm
}
