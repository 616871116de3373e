package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/evo-gateway/internal/stream"
)

// SensorChecker 采集链路健康检查器：循环状态、最近一帧的时间、下游熔断
type SensorChecker struct {
	runner     *stream.Runner
	staleAfter time.Duration
	now        func() time.Time
}

// NewSensorChecker 创建采集链路检查器；超过 staleAfter 没有新帧视为降级
func NewSensorChecker(runner *stream.Runner, staleAfter time.Duration) *SensorChecker {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Second
	}
	return &SensorChecker{runner: runner, staleAfter: staleAfter, now: time.Now}
}

// Name 返回检查器名称
func (c *SensorChecker) Name() string {
	return "sensor"
}

// Check 执行健康检查
func (c *SensorChecker) Check(_ context.Context) CheckResult {
	start := time.Now()
	st := c.runner.Status()
	stats := c.runner.Sensor().Stats()

	details := map[string]interface{}{
		"model":           stats.Model,
		"running":         st.Running,
		"frames":          st.Frames,
		"errors":          st.Errors,
		"discarded_bytes": stats.Sync.DiscardedBytes,
		"lock_timeouts":   stats.Guard.TimeoutTotal,
	}
	if st.SessionID != "" {
		details["session_id"] = st.SessionID
	}

	status, message := StatusHealthy, "ok"
	latest := c.runner.History().Latest()
	switch {
	case !st.Running && st.ExitError != "":
		status, message = StatusUnhealthy, "stream aborted: "+st.ExitError
	case !st.Running:
		status, message = StatusDegraded, "stream stopped"
	case latest == nil:
		status, message = StatusDegraded, "no frame received yet"
	case c.now().Sub(latest.Timestamp) > c.staleAfter:
		status = StatusDegraded
		message = fmt.Sprintf("no frame for %s", c.now().Sub(latest.Timestamp).Round(time.Millisecond))
	}

	for name, br := range st.Sinks {
		if br.State != stream.BreakerClosed.String() && status == StatusHealthy {
			status, message = StatusDegraded, "sink "+name+" circuit "+br.State
		}
	}
	if latest != nil {
		details["last_frame_at"] = latest.Timestamp
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
