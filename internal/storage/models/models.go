package models

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/taoyao-code/evo-gateway/internal/driver"
	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
)

// 注意：
// - 与 internal/migrate/sql 中的建表语句保持对齐
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// Measurement 映射 evo_measurements 表
type Measurement struct {
	ID    int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id,omitempty"`
	Model string `gorm:"column:model;type:text;not null" json:"model"`
	Kind  string `gorm:"column:kind;type:text;not null" json:"kind"`
	// 驱动内的帧序号，重启后从 1 开始
	Seq     int64     `gorm:"column:seq;not null" json:"seq"`
	TakenAt time.Time `gorm:"column:taken_at;not null" json:"taken_at"`
	Rows    int       `gorm:"column:rows;not null" json:"rows"`
	Cols    int       `gorm:"column:cols;not null" json:"cols"`
	Unit    string    `gorm:"column:unit;type:text;not null" json:"unit"`
	// 物理量数组，非有限值编码为字符串
	Readings  json.RawMessage `gorm:"column:readings;type:jsonb;not null" json:"readings"`
	Ambient   *float64        `gorm:"column:ambient" json:"ambient,omitempty"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"-"`
}

func (Measurement) TableName() string { return "evo_measurements" }

// FromMeasurement 转换驱动输出为存储记录
func FromMeasurement(m *evo.Measurement) (*Measurement, error) {
	readings, err := json.Marshal(m.Values)
	if err != nil {
		return nil, err
	}
	rec := &Measurement{
		Model:    string(m.Model),
		Kind:     string(m.Kind),
		Seq:      int64(m.Seq),
		TakenAt:  m.Timestamp,
		Rows:     m.Rows,
		Cols:     m.Cols,
		Unit:     m.Unit,
		Readings: readings,
	}
	if m.Ambient != nil {
		v := float64(*m.Ambient)
		rec.Ambient = &v
	}
	return rec, nil
}

// Values 解析 Readings
func (m *Measurement) Values() ([]evo.Reading, error) {
	var out []evo.Reading
	err := json.Unmarshal(m.Readings, &out)
	return out, err
}

// CommandLog 映射 evo_command_logs 表
type CommandLog struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id,omitempty"`
	ExchangeID   string    `gorm:"column:exchange_id;type:uuid;not null;uniqueIndex" json:"exchange_id"`
	Model        string    `gorm:"column:model;type:text;not null" json:"model"`
	Command      string    `gorm:"column:command;type:text;not null" json:"command"`
	Opcode       string    `gorm:"column:opcode;type:text;not null" json:"opcode"`
	State        string    `gorm:"column:state;type:text;not null" json:"state"`
	AckStatus    *int16    `gorm:"column:ack_status" json:"ack_status,omitempty"`
	Discarded    int       `gorm:"column:discarded;not null;default:0" json:"discarded"`
	DrainedLines int       `gorm:"column:drained_lines;not null;default:0" json:"drained_lines"`
	ElapsedMs    int64     `gorm:"column:elapsed_ms;not null;default:0" json:"elapsed_ms"`
	Error        *string   `gorm:"column:error;type:text" json:"error,omitempty"`
	StartedAt    time.Time `gorm:"column:started_at;not null" json:"started_at"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
}

func (CommandLog) TableName() string { return "evo_command_logs" }

// FromExchange 转换一次命令交互为存储记录
func FromExchange(ex *driver.Exchange) *CommandLog {
	rec := &CommandLog{
		ExchangeID:   ex.ID,
		Model:        string(ex.Model),
		Command:      ex.Command,
		Opcode:       hex.EncodeToString(ex.Opcode),
		State:        ex.State.String(),
		Discarded:    ex.Discarded,
		DrainedLines: ex.DrainedLines,
		ElapsedMs:    ex.Elapsed.Milliseconds(),
		StartedAt:    ex.StartedAt,
	}
	if ex.Ack != nil {
		status := int16(ex.Ack.Status)
		rec.AckStatus = &status
	}
	if ex.Error != "" {
		msg := ex.Error
		rec.Error = &msg
	}
	return rec
}
