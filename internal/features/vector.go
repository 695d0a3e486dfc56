// Package features 将采样聚合为按小时的固定长度特征向量
package features

import (
	"fmt"
	"math"
)

// 特征下标（顺序固定，模型训练与推理共用）
const (
	HRMean = iota
	HRStd
	SpO2Mean
	SpO2Std
	TempMean
	TempStd
	AccMean
	AccStd
	AccDevMean
	AccDevMax
	HRIQR

	// Size 特征维度
	Size
)

// RestingAcceleration 静止时的加速度（g），acc_dev = |acc - 1.0|
const RestingAcceleration = 1.0

// Names 特征名（与下标一一对应）
var Names = [Size]string{
	"hr_mean", "hr_std",
	"spo2_mean", "spo2_std",
	"temp_mean", "temp_std",
	"acc_mean", "acc_std",
	"acc_dev_mean", "acc_dev_max",
	"hr_iqr",
}

// Vector 一组采样的 11 维统计特征
type Vector [Size]float64

// Slice 转为切片（供分类器使用）
func (v Vector) Slice() []float64 {
	out := make([]float64, Size)
	copy(out, v[:])
	return out
}

// Validate 检查是否含 NaN/Inf
func (v Vector) Validate() error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("feature %s is not finite: %v", Names[i], x)
		}
	}
	return nil
}

// Means 某小时四项指标的均值
type Means struct {
	HeartRate    float64
	SpO2         float64
	Temperature  float64
	Acceleration float64
}

// FromMeans 仅有均值时的退化编码：
// 所有 std 与 hr_iqr 置 0，acc_dev_mean == acc_dev_max == |acc_mean - 1|
func FromMeans(m Means) Vector {
	dev := math.Abs(m.Acceleration - RestingAcceleration)
	var v Vector
	v[HRMean] = m.HeartRate
	v[SpO2Mean] = m.SpO2
	v[TempMean] = m.Temperature
	v[AccMean] = m.Acceleration
	v[AccDevMean] = dev
	v[AccDevMax] = dev
	return v
}
