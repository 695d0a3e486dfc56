package models

import (
	"fmt"
	"time"
)

// Quality 睡眠质量标签
type Quality string

const (
	QualityGood   Quality = "GOOD"
	QualityMedium Quality = "MEDIUM"
	QualityBad    Quality = "BAD"
)

// Score 标签对应的数值（GOOD=3, MEDIUM=2, BAD=1）
func (q Quality) Score() int {
	switch q {
	case QualityGood:
		return 3
	case QualityMedium:
		return 2
	case QualityBad:
		return 1
	default:
		return 0
	}
}

// Valid 是否为合法标签
func (q Quality) Valid() bool {
	return q.Score() != 0
}

// QualityFromScore 整数分值转标签
func QualityFromScore(score int) (Quality, error) {
	switch score {
	case 3:
		return QualityGood, nil
	case 2:
		return QualityMedium, nil
	case 1:
		return QualityBad, nil
	default:
		return "", fmt.Errorf("invalid quality score: %d", score)
	}
}

// ParseQuality 解析数据库中的标签字符串
func ParseQuality(s string) (Quality, error) {
	q := Quality(s)
	if !q.Valid() {
		return "", fmt.Errorf("invalid quality label: %q", s)
	}
	return q, nil
}

// AllQualities 按 GOOD, MEDIUM, BAD 顺序（用于就近取整的平局规则）
var AllQualities = []Quality{QualityGood, QualityMedium, QualityBad}

// Session 睡眠会话
type Session struct {
	ID        string     `json:"id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Quality   *Quality   `json:"quality,omitempty"`
}

// Closed 会话是否已结束
func (s *Session) Closed() bool {
	return s.EndTime != nil
}

// Sample 会话内的一条采样
type Sample struct {
	SessionID    string    `json:"session_id"`
	Timestamp    time.Time `json:"timestamp"`
	HeartRate    float64   `json:"heart_rate"`
	SpO2         float64   `json:"spo2"`
	Temperature  float64   `json:"temperature"`
	Acceleration float64   `json:"acceleration"`
}
