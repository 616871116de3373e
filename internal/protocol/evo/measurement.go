package evo

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// 物理单位
const (
	UnitMeters  = "m"
	UnitCelsius = "°C"
)

// Reading 单个物理量读数。非有限值（±Inf、NaN）按字符串编码，
// 以便通过 JSON 传递超量程与无读数标记。
type Reading float64

// MarshalJSON 实现 json.Marshaler
func (r Reading) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	case math.IsInf(f, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, f, 'f', -1, 64), nil
}

// UnmarshalJSON 实现 json.Unmarshaler
func (r *Reading) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			*r = Reading(math.NaN())
		case "+Inf", "Inf":
			*r = Reading(math.Inf(1))
		case "-Inf":
			*r = Reading(math.Inf(-1))
		default:
			return fmt.Errorf("invalid reading %q", s)
		}
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*r = Reading(f)
	return nil
}

// Measurement 一次读取周期的解码结果，交给下游消费者
type Measurement struct {
	Model     Model     `json:"model"`
	Kind      FrameKind `json:"kind"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Rows      int       `json:"rows"`
	Cols      int       `json:"cols"`
	Unit      string    `json:"unit"`
	Values    []Reading `json:"values"`
	Raw       []uint16  `json:"raw"`
	Ambient   *Reading  `json:"ambient,omitempty"`
}

// At 返回第 row 行第 col 列的读数
func (m *Measurement) At(row, col int) float64 {
	return float64(m.Values[row*m.Cols+col])
}

// NewRangeMeasurement 64px 深度矩阵 → 米
func NewRangeMeasurement(g *RangeGrid) *Measurement {
	raw := g.Flat()
	values := make([]Reading, len(raw))
	for i, v := range raw {
		values[i] = Reading(float64(v) / 1000.0)
	}
	return &Measurement{
		Model:  ModelEvo64px,
		Kind:   KindRange,
		Rows:   RangeRows,
		Cols:   RangeCols,
		Unit:   UnitMeters,
		Values: values,
		Raw:    raw,
	}
}

// NewMiniMeasurement Mini 测距值 → 米（含特殊值映射）
func NewMiniMeasurement(raw []uint16, meters []float64) *Measurement {
	values := make([]Reading, len(meters))
	for i, v := range meters {
		values[i] = Reading(v)
	}
	return &Measurement{
		Model:  ModelEvoMini,
		Kind:   KindMini,
		Rows:   1,
		Cols:   len(values),
		Unit:   UnitMeters,
		Values: values,
		Raw:    raw,
	}
}

// NewThermalMeasurement 热成像 → 摄氏度
func NewThermalMeasurement(img *ThermalImage) *Measurement {
	values := make([]Reading, 0, ThermalPixels)
	for r := range img.Pixels {
		for _, v := range img.Pixels[r] {
			values = append(values, Reading(v))
		}
	}
	ambient := Reading(img.Ambient)
	return &Measurement{
		Model:   ModelEvoThermal,
		Kind:    KindThermal,
		Rows:    ThermalRows,
		Cols:    ThermalCols,
		Unit:    UnitCelsius,
		Values:  values,
		Raw:     img.RawPixels,
		Ambient: &ambient,
	}
}
