// Package detector 基于阈值的跌倒与生命体征异常检测
package detector

import (
	"github.com/hoanvar/LTN/internal/models"
)

// Result 检测结果
type Result struct {
	IsFall     bool
	IsAbnormal bool
	Reason     string // 首个异常项：heart_rate / spo2 / temperature
}

// Detector 阈值检测器
type Detector struct {
	thresholds models.Thresholds
}

// NewDetector 创建检测器
func NewDetector(t models.Thresholds) *Detector {
	return &Detector{thresholds: t}
}

// Thresholds 当前阈值
func (d *Detector) Thresholds() models.Thresholds {
	return d.thresholds
}

// Evaluate 跌倒：加速度达到上下限（含边界）；异常：心率、血氧、体温依次检查，命中第一个即停止
func (d *Detector) Evaluate(p models.SensorPayload) Result {
	t := d.thresholds
	var r Result

	if p.Acceleration >= t.AccelerationMax || p.Acceleration <= t.AccelerationMin {
		r.IsFall = true
	}

	switch {
	case p.HeartRate < t.HeartRateMin || p.HeartRate > t.HeartRateMax:
		r.IsAbnormal, r.Reason = true, "heart_rate"
	case p.SpO2 < t.SpO2Min || p.SpO2 > t.SpO2Max:
		r.IsAbnormal, r.Reason = true, "spo2"
	case p.Temperature < t.TemperatureMin || p.Temperature > t.TemperatureMax:
		r.IsAbnormal, r.Reason = true, "temperature"
	}

	return r
}
