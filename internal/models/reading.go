package models

import "time"

// SensorPayload 设备上报的 sensor/data 消息体
type SensorPayload struct {
	HeartRate    float64 `json:"heartRate"`
	SpO2         float64 `json:"spo2"`
	Temperature  float64 `json:"temperature"`
	Acceleration float64 `json:"acceleration"`
}

// HasZero 任一字段为 0 表示传感器尚未就绪
func (p SensorPayload) HasZero() bool {
	return p.HeartRate == 0 || p.SpO2 == 0 || p.Temperature == 0 || p.Acceleration == 0
}

// ToSample 转为会话采样
func (p SensorPayload) ToSample(ts time.Time) Sample {
	return Sample{
		Timestamp:    ts,
		HeartRate:    p.HeartRate,
		SpO2:         p.SpO2,
		Temperature:  p.Temperature,
		Acceleration: p.Acceleration,
	}
}

// SensorReading 持久化的遥测记录（与会话无关）
type SensorReading struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	HeartRate    float64   `json:"heartRate"`
	SpO2         float64   `json:"spo2"`
	Temperature  float64   `json:"temperature"`
	Acceleration float64   `json:"acceleration"`
	IsFall       bool      `json:"is_fall"`
	IsAbnormal   bool      `json:"is_abnormal"`
}
