package api

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taoyao-code/evo-gateway/internal/driver"
	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"github.com/taoyao-code/evo-gateway/internal/serialport"
	"github.com/taoyao-code/evo-gateway/internal/storage"
	"github.com/taoyao-code/evo-gateway/internal/storage/models"
	"github.com/taoyao-code/evo-gateway/internal/stream"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 1000
	stopTimeout         = 5 * time.Second
)

// SensorHandler 传感器控制面接口
type SensorHandler struct {
	runner  *stream.Runner
	history storage.HistoryRepo // 可为空，此时只能查询内存缓冲
	logger  *zap.Logger
}

// NewSensorHandler 创建传感器控制面处理器
func NewSensorHandler(runner *stream.Runner, history storage.HistoryRepo, logger *zap.Logger) *SensorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SensorHandler{runner: runner, history: history, logger: logger}
}

// SensorResponse 传感器与采集循环状态
type SensorResponse struct {
	Sensor driver.Stats  `json:"sensor"`
	Stream stream.Status `json:"stream"`
}

// CommandInfo 型号命令说明
type CommandInfo struct {
	Name        string `json:"name"`
	Opcode      string `json:"opcode"`
	Description string `json:"description"`
}

// HistoryResponse 历史测量
type HistoryResponse struct {
	Source string               `json:"source"`
	Count  int                  `json:"count"`
	Items  []models.Measurement `json:"items"`
}

// GetSensor 查询传感器状态
// @Summary 查询传感器状态
// @Description 返回驱动统计（帧数、丢弃字节、锁与应答状态）和采集循环状态
// @Tags 传感器
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} SensorResponse
// @Router /api/v1/sensor [get]
func (h *SensorHandler) GetSensor(c *gin.Context) {
	c.JSON(http.StatusOK, SensorResponse{
		Sensor: h.runner.Sensor().Stats(),
		Stream: h.runner.Status(),
	})
}

// LatestMeasurement 查询最新测量
// @Summary 查询最新测量
// @Tags 测量
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} evo.Measurement
// @Failure 404 {object} map[string]string
// @Router /api/v1/measurements/latest [get]
func (h *SensorHandler) LatestMeasurement(c *gin.Context) {
	m := h.runner.History().Latest()
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no measurement yet"})
		return
	}
	c.JSON(http.StatusOK, m)
}

// MeasurementHistory 查询历史测量
// @Summary 查询历史测量
// @Description 配置了持久化存储时从存储读取，否则读取内存中的最近测量
// @Tags 测量
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "返回条数" default(20)
// @Param model query string false "型号过滤，默认为当前传感器型号"
// @Success 200 {object} HistoryResponse
// @Failure 400 {object} map[string]string
// @Router /api/v1/measurements/history [get]
func (h *SensorHandler) MeasurementHistory(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	model := c.DefaultQuery("model", string(h.runner.Sensor().Model()))

	if h.history != nil {
		items, err := h.history.RecentMeasurements(c.Request.Context(), model, limit)
		if err != nil {
			h.logger.Error("query measurement history failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, HistoryResponse{Source: "storage", Count: len(items), Items: items})
		return
	}

	recent := h.runner.History().Recent(limit)
	items := make([]models.Measurement, 0, len(recent))
	for _, m := range recent {
		if model != "" && string(m.Model) != model {
			continue
		}
		rec, err := models.FromMeasurement(m)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		items = append(items, *rec)
	}
	c.JSON(http.StatusOK, HistoryResponse{Source: "memory", Count: len(items), Items: items})
}

// ListCommands 列出当前型号的命令
// @Summary 列出当前型号支持的命令
// @Tags 命令
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} CommandInfo
// @Router /api/v1/commands [get]
func (h *SensorHandler) ListCommands(c *gin.Context) {
	cmds := h.runner.Sensor().Commands()
	out := make([]CommandInfo, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, CommandInfo{
			Name:        cmd.Name(),
			Opcode:      hex.EncodeToString(cmd.Opcode()),
			Description: cmd.Description(),
		})
	}
	c.JSON(http.StatusOK, out)
}

// SendCommand 下发模式命令
// @Summary 下发模式命令
// @Description 写入命令并等待 ACK/NACK，不自动重试
// @Tags 命令
// @Produce json
// @Security ApiKeyAuth
// @Param name path string true "命令名称"
// @Success 200 {object} driver.Exchange
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]interface{}
// @Failure 504 {object} map[string]interface{}
// @Router /api/v1/commands/{name} [post]
func (h *SensorHandler) SendCommand(c *gin.Context) {
	name := c.Param("name")
	ex, err := h.runner.Send(c.Request.Context(), name)
	if err != nil {
		code := commandStatus(err)
		h.logger.Info("api command rejected",
			zap.String("command", name),
			zap.Int("status", code),
			zap.Error(err))
		body := gin.H{"error": err.Error()}
		if ex != nil {
			body["exchange"] = ex
		}
		c.JSON(code, body)
		return
	}
	c.JSON(http.StatusOK, ex)
}

// CommandHistory 查询命令交互记录
// @Summary 查询命令交互记录
// @Tags 命令
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "返回条数" default(20)
// @Success 200 {array} models.CommandLog
// @Failure 503 {object} map[string]string
// @Router /api/v1/commands/history [get]
func (h *SensorHandler) CommandHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history storage disabled"})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	items, err := h.history.RecentCommandLogs(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("query command history failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, items)
}

// StartStream 启动采集循环
// @Summary 启动采集循环
// @Tags 采集
// @Produce json
// @Security ApiKeyAuth
// @Success 202 {object} stream.Status
// @Failure 409 {object} map[string]string
// @Router /api/v1/stream/start [post]
func (h *SensorHandler) StartStream(c *gin.Context) {
	if err := h.runner.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, h.runner.Status())
}

// StopStream 停止采集循环
// @Summary 停止采集循环
// @Tags 采集
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} stream.Status
// @Failure 409 {object} map[string]string
// @Router /api/v1/stream/stop [post]
func (h *SensorHandler) StopStream(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), stopTimeout)
	defer cancel()
	if err := h.runner.Stop(ctx); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, stream.ErrNotRunning) {
			code = http.StatusConflict
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.runner.Status())
}

// commandStatus 命令错误到 HTTP 状态码的映射
func commandStatus(err error) int {
	switch {
	case errors.Is(err, evo.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, evo.ErrNackReceived):
		return http.StatusConflict
	case errors.Is(err, evo.ErrAckTimeout),
		errors.Is(err, evo.ErrLockTimeout),
		errors.Is(err, serialport.ErrReadTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, evo.ErrChecksumMismatch),
		errors.Is(err, evo.ErrInvalidFrameLength),
		errors.Is(err, serialport.ErrClosed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	if n > maxHistoryLimit {
		n = maxHistoryLimit
	}
	return n, true
}
