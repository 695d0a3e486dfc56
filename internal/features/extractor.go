package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hoanvar/LTN/internal/models"

	"github.com/montanaflynn/stats"
)

// ErrEmptyGroup 空分组不产生特征
var ErrEmptyGroup = errors.New("empty sample group")

// HourGroup 同一小时（本地时区）的采样
type HourGroup struct {
	Hour    int
	Samples []models.Sample
}

// HourlyFeatures 某小时的完整特征
type HourlyFeatures struct {
	Hour   int
	Vector Vector
}

// HourOf 返回 t 在 loc 时区下的小时（0-23）
// 不区分日期：不同日期的同一小时会合并到同一组
func HourOf(t time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Hour()
}

// GroupByHour 按本地小时分组，结果按小时升序，不产生空组
func GroupByHour(samples []models.Sample, loc *time.Location) []HourGroup {
	buckets := make(map[int][]models.Sample)
	for _, s := range samples {
		h := HourOf(s.Timestamp, loc)
		buckets[h] = append(buckets[h], s)
	}

	groups := make([]HourGroup, 0, len(buckets))
	for h, ss := range buckets {
		groups = append(groups, HourGroup{Hour: h, Samples: ss})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Hour < groups[j].Hour })
	return groups
}

// Means 计算本组四项指标均值
func (g HourGroup) Means() (Means, error) {
	if len(g.Samples) == 0 {
		return Means{}, ErrEmptyGroup
	}
	cols := columnsOf(g.Samples)
	return Means{
		HeartRate:    mean(cols.hr),
		SpO2:         mean(cols.spo2),
		Temperature:  mean(cols.temp),
		Acceleration: mean(cols.acc),
	}, nil
}

// Extract 计算一组采样的完整特征向量（std 为总体标准差）
func Extract(samples []models.Sample) (Vector, error) {
	var v Vector
	if len(samples) == 0 {
		return v, ErrEmptyGroup
	}

	cols := columnsOf(samples)
	devs := make(stats.Float64Data, len(cols.acc))
	for i, a := range cols.acc {
		devs[i] = math.Abs(a - RestingAcceleration)
	}

	v[HRMean] = mean(cols.hr)
	v[HRStd] = std(cols.hr)
	v[SpO2Mean] = mean(cols.spo2)
	v[SpO2Std] = std(cols.spo2)
	v[TempMean] = mean(cols.temp)
	v[TempStd] = std(cols.temp)
	v[AccMean] = mean(cols.acc)
	v[AccStd] = std(cols.acc)
	v[AccDevMean] = mean(devs)
	maxDev, err := stats.Max(devs)
	if err != nil {
		return v, fmt.Errorf("failed to compute acc_dev_max: %w", err)
	}
	v[AccDevMax] = maxDev
	v[HRIQR] = IQR(cols.hr)

	if err := v.Validate(); err != nil {
		return v, err
	}
	return v, nil
}

// ExtractHourly 按小时分组后逐组计算特征
func ExtractHourly(samples []models.Sample, loc *time.Location) ([]HourlyFeatures, error) {
	groups := GroupByHour(samples, loc)
	out := make([]HourlyFeatures, 0, len(groups))
	for _, g := range groups {
		v, err := Extract(g.Samples)
		if err != nil {
			return nil, fmt.Errorf("hour %d: %w", g.Hour, err)
		}
		out = append(out, HourlyFeatures{Hour: g.Hour, Vector: v})
	}
	return out, nil
}

type columns struct {
	hr, spo2, temp, acc stats.Float64Data
}

func columnsOf(samples []models.Sample) columns {
	c := columns{
		hr:   make(stats.Float64Data, len(samples)),
		spo2: make(stats.Float64Data, len(samples)),
		temp: make(stats.Float64Data, len(samples)),
		acc:  make(stats.Float64Data, len(samples)),
	}
	for i, s := range samples {
		c.hr[i] = s.HeartRate
		c.spo2[i] = s.SpO2
		c.temp[i] = s.Temperature
		c.acc[i] = s.Acceleration
	}
	return c
}

// 调用方保证输入非空，stats 只会在空输入时返回错误
func mean(d stats.Float64Data) float64 {
	m, _ := stats.Mean(d)
	return m
}

func std(d stats.Float64Data) float64 {
	s, _ := stats.StandardDeviationPopulation(d)
	return s
}
