package models

// Thresholds 告警阈值（下发给设备，同时用于跌倒/异常检测）
type Thresholds struct {
	HeartRateMin    float64
	HeartRateMax    float64
	SpO2Min         float64
	SpO2Max         float64
	TemperatureMin  float64
	TemperatureMax  float64
	AccelerationMin float64
	AccelerationMax float64
}

// DefaultThresholds 默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{
		HeartRateMin:    60,
		HeartRateMax:    100,
		SpO2Min:         95,
		SpO2Max:         100,
		TemperatureMin:  30,
		TemperatureMax:  37,
		AccelerationMin: 0.5,
		AccelerationMax: 2.0,
	}
}

// DeviceSettings 设备端期望的阈值格式（sensor/settings）
type DeviceSettings struct {
	HeartRateHigh float64 `json:"heartRateHigh"`
	HeartRateLow  float64 `json:"heartRateLow"`
	SpO2          float64 `json:"spo2"`
	TempHigh      float64 `json:"tempHigh"`
	TempLow       float64 `json:"tempLow"`
	AccLow        float64 `json:"accLow"`
	AccHigh       float64 `json:"accHigh"`
}

// DeviceSettings 转为设备格式
func (t Thresholds) DeviceSettings() DeviceSettings {
	return DeviceSettings{
		HeartRateHigh: t.HeartRateMax,
		HeartRateLow:  t.HeartRateMin,
		SpO2:          t.SpO2Min,
		TempHigh:      t.TemperatureMax,
		TempLow:       t.TemperatureMin,
		AccLow:        t.AccelerationMin,
		AccHigh:       t.AccelerationMax,
	}
}

// HeuristicCriteria 启发式评分的判定区间（全部为闭区间）
type HeuristicCriteria struct {
	HeartRateMin    float64
	HeartRateMax    float64
	SpO2Min         float64
	TemperatureMin  float64
	TemperatureMax  float64
	AccelerationMax float64
}

// DefaultHeuristicCriteria 默认判定区间
func DefaultHeuristicCriteria() HeuristicCriteria {
	return HeuristicCriteria{
		HeartRateMin:    60,
		HeartRateMax:    80,
		SpO2Min:         96,
		TemperatureMin:  36.5,
		TemperatureMax:  37.0,
		AccelerationMax: 1.05,
	}
}
