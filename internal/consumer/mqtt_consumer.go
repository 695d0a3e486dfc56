// Package consumer 订阅 sleep / sensor/data 主题，把设备消息分发给分析器、检测器与存储
package consumer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hoanvar/LTN/internal/analyzer"
	"github.com/hoanvar/LTN/internal/config"
	"github.com/hoanvar/LTN/internal/detector"
	"github.com/hoanvar/LTN/internal/models"
	mqttcommon "github.com/hoanvar/LTN/internal/platform/mqtt"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// ErrMalformedMessage 消息体无法解析
var ErrMalformedMessage = errors.New("malformed message")

// Broker MQTT 订阅与发布
type Broker interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// SessionTracker 会话状态机（*analyzer.Analyzer）
type SessionTracker interface {
	SeenMessage(key string) bool
	StartSession(ctx context.Context) (*models.Session, error)
	AddSample(ctx context.Context, sample models.Sample) error
	EndSession(ctx context.Context) (*analyzer.Analysis, error)
}

// ReadingStore 遥测记录持久化
type ReadingStore interface {
	Insert(ctx context.Context, reading *models.SensorReading) error
}

// LatestCache 最新读数缓存
type LatestCache interface {
	SetLatest(ctx context.Context, reading *models.SensorReading) error
}

// FallNotifier 跌倒告警
type FallNotifier interface {
	NotifyFall(ctx context.Context, reading *models.SensorReading) error
}

// Metrics 消费侧指标
type Metrics interface {
	MessageReceived(topic string)
	MessageDropped(reason string)
	ReadingStored(isFall, isAbnormal bool)
}

// Deps 消费者依赖；Readings/Cache/Notifier/Metrics 可为 nil
type Deps struct {
	Broker   Broker
	Tracker  SessionTracker
	Detector *detector.Detector
	Readings ReadingStore
	Cache    LatestCache
	Notifier FallNotifier
	Metrics  Metrics
}

// MQTTConsumer MQTT消息消费者
type MQTTConsumer struct {
	config *config.Config
	deps   Deps
	logger *zap.Logger
	now    func() time.Time

	// 告警在后台发送，Stop 时等待
	alerts sync.WaitGroup
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(cfg *config.Config, deps Deps, logger *zap.Logger) *MQTTConsumer {
	return &MQTTConsumer{
		config: cfg,
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}
}

// Start 订阅主题并下发阈值，阻塞直到 ctx 取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	qos := c.config.MQTT.QoS
	handler := func(msg mqttcommon.Message) error {
		return c.HandleMessage(ctx, msg)
	}

	for _, topic := range []string{c.config.Sleep.SleepTopic, c.config.Sleep.DataTopic} {
		if err := c.deps.Broker.Subscribe(topic, qos, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	if err := c.PublishThresholds(); err != nil {
		c.logger.Warn("Failed to publish thresholds", zap.Error(err))
	}

	c.logger.Info("MQTT consumer started",
		zap.String("sleep_topic", c.config.Sleep.SleepTopic),
		zap.String("data_topic", c.config.Sleep.DataTopic),
		zap.Uint8("qos", qos),
	)

	<-ctx.Done()
	return nil
}

// Stop 取消订阅并等待未完成的告警
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if err := c.deps.Broker.Unsubscribe(c.config.Sleep.SleepTopic, c.config.Sleep.DataTopic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		c.alerts.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("Pending fall alerts abandoned", zap.Error(ctx.Err()))
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// PublishThresholds 以设备格式下发阈值（retained, QoS 1）
func (c *MQTTConsumer) PublishThresholds() error {
	topic := c.config.Sleep.SettingsTopic
	if topic == "" {
		return nil
	}
	payload, err := json.Marshal(c.deps.Detector.Thresholds().DeviceSettings())
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}
	if err := c.deps.Broker.Publish(topic, 1, true, payload); err != nil {
		return err
	}
	c.logger.Info("Thresholds published", zap.String("topic", topic), zap.ByteString("payload", payload))
	return nil
}

// HandleMessage 处理一条MQTT消息
func (c *MQTTConsumer) HandleMessage(ctx context.Context, msg mqttcommon.Message) error {
	c.received(msg.Topic)

	// QoS 0 没有 packet id，不去重
	if key := dedupKey(msg); c.deps.Tracker.SeenMessage(key) {
		c.logger.Debug("Duplicate message dropped",
			zap.String("topic", msg.Topic),
			zap.Uint16("message_id", msg.MessageID),
		)
		c.dropped("duplicate")
		return nil
	}

	switch msg.Topic {
	case c.config.Sleep.SleepTopic:
		return c.handleSleep(ctx, msg.Payload)
	case c.config.Sleep.DataTopic:
		return c.handleSensorData(ctx, msg.Payload)
	default:
		c.logger.Debug("Unhandled topic", zap.String("topic", msg.Topic))
		return nil
	}
}

// handleSleep 载荷恰为 "1" 时开始会话，其余（包括 " 1"）结束会话
func (c *MQTTConsumer) handleSleep(ctx context.Context, payload []byte) error {
	if string(payload) == "1" {
		if _, err := c.deps.Tracker.StartSession(ctx); err != nil {
			if errors.Is(err, analyzer.ErrInvalidStateTransition) {
				c.dropped("invalid_transition")
				return nil
			}
			return err
		}
		return nil
	}

	if _, err := c.deps.Tracker.EndSession(ctx); err != nil {
		if errors.Is(err, analyzer.ErrInvalidStateTransition) {
			c.dropped("invalid_transition")
			return nil
		}
		return err
	}
	return nil
}

// handleSensorData 解析遥测：检测、持久化、缓存、告警，RECORDING 时加入会话
func (c *MQTTConsumer) handleSensorData(ctx context.Context, payload []byte) error {
	var p models.SensorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("Failed to decode sensor data",
			zap.Int("payload_size", len(payload)),
			zap.Error(err),
		)
		c.dropped("malformed")
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	// 任一字段为 0：传感器尚未就绪
	if p.HasZero() {
		c.logger.Debug("Sensor not ready, reading skipped")
		c.dropped("sensor_not_ready")
		return nil
	}

	ts := c.now()
	result := c.deps.Detector.Evaluate(p)
	reading := &models.SensorReading{
		Timestamp:    ts,
		HeartRate:    p.HeartRate,
		SpO2:         p.SpO2,
		Temperature:  p.Temperature,
		Acceleration: p.Acceleration,
		IsFall:       result.IsFall,
		IsAbnormal:   result.IsAbnormal,
	}

	if result.IsAbnormal {
		c.logger.Warn("Abnormal vital signs",
			zap.String("reason", result.Reason),
			zap.Float64("heart_rate", p.HeartRate),
			zap.Float64("spo2", p.SpO2),
			zap.Float64("temperature", p.Temperature),
		)
	}

	if c.deps.Readings != nil {
		if err := c.deps.Readings.Insert(ctx, reading); err != nil {
			// 继续处理，不中断
			c.logger.Error("Failed to store sensor reading", zap.Error(err))
		} else if c.deps.Metrics != nil {
			c.deps.Metrics.ReadingStored(reading.IsFall, reading.IsAbnormal)
		}
	}

	if c.deps.Cache != nil {
		if err := c.deps.Cache.SetLatest(ctx, reading); err != nil {
			c.logger.Warn("Failed to cache latest reading", zap.Error(err))
		}
	}

	if result.IsFall {
		c.logger.Warn("Fall detected", zap.Float64("acceleration", p.Acceleration))
		c.sendFallAlert(ctx, reading)
	}

	if err := c.deps.Tracker.AddSample(ctx, p.ToSample(ts)); err != nil {
		if errors.Is(err, analyzer.ErrInvalidStateTransition) {
			return nil
		}
		return err
	}
	return nil
}

func (c *MQTTConsumer) sendFallAlert(ctx context.Context, reading *models.SensorReading) {
	if c.deps.Notifier == nil {
		return
	}
	r := *reading
	c.alerts.Add(1)
	go func() {
		defer c.alerts.Done()
		if err := c.deps.Notifier.NotifyFall(context.WithoutCancel(ctx), &r); err != nil {
			c.logger.Error("Failed to send fall alert", zap.Error(err))
		}
	}()
}

func (c *MQTTConsumer) received(topic string) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.MessageReceived(topic)
	}
}

func (c *MQTTConsumer) dropped(reason string) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.MessageDropped(reason)
	}
}

func dedupKey(msg mqttcommon.Message) string {
	if msg.QoS == 0 {
		return ""
	}
	return msg.Topic + "#" + strconv.FormatUint(uint64(msg.MessageID), 10)
}
