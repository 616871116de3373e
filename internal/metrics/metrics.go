package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// SensorMetrics 传感器链路指标。实现 driver.Observer 与 stream.Observer，
// 同时作为 stream.Sink 记录最新帧时间与环境温度。
type SensorMetrics struct {
	FramesTotal         *prometheus.CounterVec   // labels: model, result
	DiscardedBytesTotal *prometheus.CounterVec   // labels: model
	CommandsTotal       *prometheus.CounterVec   // labels: model, command, result
	CommandDuration     *prometheus.HistogramVec // labels: model, command
	LockTimeoutsTotal   *prometheus.CounterVec   // labels: model, op
	SinkPublishTotal    *prometheus.CounterVec   // labels: sink, result
	AmbientCelsius      *prometheus.GaugeVec     // labels: model
	LastFrameTimestamp  *prometheus.GaugeVec     // labels: model
}

// NewSensorMetrics 注册并返回传感器指标
func NewSensorMetrics(reg prometheus.Registerer) *SensorMetrics {
	m := &SensorMetrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evo_frames_total",
			Help: "Frame read attempts by result.",
		}, []string{"model", "result"}),
		DiscardedBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evo_discarded_bytes_total",
			Help: "Bytes discarded while hunting for a frame header.",
		}, []string{"model"}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evo_commands_total",
			Help: "Command exchanges by result.",
		}, []string{"model", "command", "result"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evo_command_duration_seconds",
			Help:    "Command write to ACK latency.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"model", "command"}),
		LockTimeoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evo_channel_lock_timeouts_total",
			Help: "Channel guard acquisitions that timed out.",
		}, []string{"model", "op"}),
		SinkPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evo_sink_publish_total",
			Help: "Measurement fan-out results by sink.",
		}, []string{"sink", "result"}),
		AmbientCelsius: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evo_ambient_celsius",
			Help: "Latest sensor ambient temperature.",
		}, []string{"model"}),
		LastFrameTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evo_last_frame_timestamp_seconds",
			Help: "Unix time of the latest decoded frame.",
		}, []string{"model"}),
	}
	reg.MustRegister(
		m.FramesTotal, m.DiscardedBytesTotal, m.CommandsTotal, m.CommandDuration,
		m.LockTimeoutsTotal, m.SinkPublishTotal, m.AmbientCelsius, m.LastFrameTimestamp,
	)
	return m
}

// FrameResult 实现 driver.Observer
func (m *SensorMetrics) FrameResult(model evo.Model, result string) {
	m.FramesTotal.WithLabelValues(string(model), result).Inc()
}

// BytesDiscarded 实现 driver.Observer
func (m *SensorMetrics) BytesDiscarded(model evo.Model, n int) {
	m.DiscardedBytesTotal.WithLabelValues(string(model)).Add(float64(n))
}

// CommandResult 实现 driver.Observer
func (m *SensorMetrics) CommandResult(model evo.Model, command, result string, elapsed time.Duration) {
	m.CommandsTotal.WithLabelValues(string(model), command, result).Inc()
	m.CommandDuration.WithLabelValues(string(model), command).Observe(elapsed.Seconds())
}

// LockTimeout 实现 driver.Observer
func (m *SensorMetrics) LockTimeout(model evo.Model, op string) {
	m.LockTimeoutsTotal.WithLabelValues(string(model), op).Inc()
}

// SinkResult 实现 stream.Observer
func (m *SensorMetrics) SinkResult(sink, result string) {
	m.SinkPublishTotal.WithLabelValues(sink, result).Inc()
}

// Name 实现 stream.Sink
func (m *SensorMetrics) Name() string { return "metrics" }

// Publish 实现 stream.Sink
func (m *SensorMetrics) Publish(_ context.Context, ms *evo.Measurement) error {
	model := string(ms.Model)
	m.LastFrameTimestamp.WithLabelValues(model).Set(float64(ms.Timestamp.UnixNano()) / 1e9)
	if ms.Ambient != nil {
		m.AmbientCelsius.WithLabelValues(model).Set(float64(*ms.Ambient))
	}
	return nil
}
