// Package alert 跌倒告警通知（HTTP webhook）
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/hoanvar/LTN/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Config webhook 配置；URL 为空时不发送
type Config struct {
	WebhookURL string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// FallAlert 告警消息体
type FallAlert struct {
	Type         string  `json:"type"`
	Message      string  `json:"message"`
	Time         string  `json:"time"`
	ReadingID    int64   `json:"reading_id,omitempty"`
	HeartRate    float64 `json:"heartRate"`
	SpO2         float64 `json:"spo2"`
	Temperature  float64 `json:"temperature"`
	Acceleration float64 `json:"acceleration"`
}

// Notifier 跌倒告警发送器
type Notifier struct {
	httpClient *resty.Client
	url        string
	location   *time.Location
	logger     *zap.Logger
}

// NewNotifier 创建告警发送器
func NewNotifier(cfg Config, loc *time.Location, logger *zap.Logger) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(5*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Notifier{
		httpClient: client,
		url:        cfg.WebhookURL,
		location:   loc,
		logger:     logger,
	}
}

// Enabled 是否配置了 webhook
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// NotifyFall 发送跌倒告警
func (n *Notifier) NotifyFall(ctx context.Context, r *models.SensorReading) error {
	if !n.Enabled() {
		return nil
	}

	local := r.Timestamp.In(n.location)
	payload := FallAlert{
		Type:         "fall",
		Message:      fmt.Sprintf("Fall detected at %s", local.Format("2006-01-02 15:04:05")),
		Time:         local.Format(time.RFC3339),
		ReadingID:    r.ID,
		HeartRate:    r.HeartRate,
		SpO2:         r.SpO2,
		Temperature:  r.Temperature,
		Acceleration: r.Acceleration,
	}

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to send fall alert: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("fall alert rejected: status %d", resp.StatusCode())
	}

	n.logger.Info("Fall alert sent",
		zap.Int64("reading_id", r.ID),
		zap.Float64("acceleration", r.Acceleration),
		zap.Int("status", resp.StatusCode()),
	)
	return nil
}
