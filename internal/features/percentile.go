package features

import (
	"math"
	"sort"
)

// Percentile 线性插值百分位（与 numpy 默认 linear 方法一致）
// p 取值 0..100；空输入返回 NaN
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// IQR 四分位距 P75 - P25
func IQR(data []float64) float64 {
	return Percentile(data, 75) - Percentile(data, 25)
}
