package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hoanvar/LTN/internal/analyzer"
	"github.com/hoanvar/LTN/internal/config"
	"github.com/hoanvar/LTN/internal/detector"
	"github.com/hoanvar/LTN/internal/models"
	mqttcommon "github.com/hoanvar/LTN/internal/platform/mqtt"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeBroker struct {
	mu           sync.Mutex
	handlers     map[string]mqttcommon.MessageHandler
	published    []published
	unsubscribed []string
}

func (b *fakeBroker) Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[string]mqttcommon.MessageHandler)
	}
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribed = append(b.unsubscribed, topics...)
	return nil
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{topic, qos, retained, payload})
	return nil
}

func (b *fakeBroker) subscribed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

type fakeTracker struct {
	dedup     *analyzer.Deduper
	recording bool
	starts    int
	ends      int
	samples   []models.Sample
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{dedup: analyzer.NewDeduper(100)}
}

func (f *fakeTracker) SeenMessage(key string) bool {
	if key == "" {
		return false
	}
	return f.dedup.Seen(key)
}

func (f *fakeTracker) StartSession(ctx context.Context) (*models.Session, error) {
	if f.recording {
		return nil, analyzer.ErrInvalidStateTransition
	}
	f.recording = true
	f.starts++
	return &models.Session{ID: "s1", StartTime: time.Now()}, nil
}

func (f *fakeTracker) AddSample(ctx context.Context, s models.Sample) error {
	if !f.recording {
		return analyzer.ErrInvalidStateTransition
	}
	f.samples = append(f.samples, s)
	return nil
}

func (f *fakeTracker) EndSession(ctx context.Context) (*analyzer.Analysis, error) {
	if !f.recording {
		return nil, analyzer.ErrInvalidStateTransition
	}
	f.recording = false
	f.ends++
	return &analyzer.Analysis{Quality: models.QualityMedium, Score: 2}, nil
}

type fakeReadings struct {
	stored []models.SensorReading
	err    error
}

func (f *fakeReadings) Insert(ctx context.Context, r *models.SensorReading) error {
	if f.err != nil {
		return f.err
	}
	r.ID = int64(len(f.stored) + 1)
	f.stored = append(f.stored, *r)
	return nil
}

type fakeCache struct {
	latest *models.SensorReading
}

func (f *fakeCache) SetLatest(ctx context.Context, r *models.SensorReading) error {
	c := *r
	f.latest = &c
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	falls []models.SensorReading
}

func (f *fakeNotifier) NotifyFall(ctx context.Context, r *models.SensorReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.falls = append(f.falls, *r)
	return nil
}

type fakeMetrics struct {
	received map[string]int
	dropped  map[string]int
	stored   int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{received: map[string]int{}, dropped: map[string]int{}}
}

func (m *fakeMetrics) MessageReceived(topic string) { m.received[topic]++ }
func (m *fakeMetrics) MessageDropped(reason string) { m.dropped[reason]++ }
func (m *fakeMetrics) ReadingStored(isFall, _ bool) { m.stored++ }

type fixture struct {
	consumer *MQTTConsumer
	broker   *fakeBroker
	tracker  *fakeTracker
	readings *fakeReadings
	cache    *fakeCache
	notifier *fakeNotifier
	metrics  *fakeMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{}
	cfg.MQTT.QoS = 1
	cfg.Sleep.SleepTopic = "sleep"
	cfg.Sleep.DataTopic = "sensor/data"
	cfg.Sleep.SettingsTopic = "sensor/settings"

	f := &fixture{
		broker:   &fakeBroker{},
		tracker:  newFakeTracker(),
		readings: &fakeReadings{},
		cache:    &fakeCache{},
		notifier: &fakeNotifier{},
		metrics:  newFakeMetrics(),
	}
	f.consumer = NewMQTTConsumer(cfg, Deps{
		Broker:   f.broker,
		Tracker:  f.tracker,
		Detector: detector.NewDetector(models.DefaultThresholds()),
		Readings: f.readings,
		Cache:    f.cache,
		Notifier: f.notifier,
		Metrics:  f.metrics,
	}, zap.NewNop())
	return f
}

var nextID uint16

func message(topic, payload string) mqttcommon.Message {
	nextID++
	return mqttcommon.Message{Topic: topic, Payload: []byte(payload), MessageID: nextID, QoS: 1}
}

const normalPayload = `{"heartRate":70,"spo2":98,"temperature":36.8,"acceleration":1.0}`

func TestHandleMessage_SessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.consumer.HandleMessage(ctx, message("sleep", "1")))
	require.NoError(t, f.consumer.HandleMessage(ctx, message("sensor/data", normalPayload)))
	require.NoError(t, f.consumer.HandleMessage(ctx, message("sensor/data", normalPayload)))
	require.NoError(t, f.consumer.HandleMessage(ctx, message("sleep", "0")))

	assert.Equal(t, 1, f.tracker.starts)
	assert.Equal(t, 1, f.tracker.ends)
	require.Len(t, f.tracker.samples, 2)
	assert.Equal(t, 70.0, f.tracker.samples[0].HeartRate)
	assert.Len(t, f.readings.stored, 2)
	assert.Equal(t, 2, f.metrics.stored)
	assert.Equal(t, 2, f.metrics.received["sleep"])
}

func TestHandleMessage_InvalidTransitionsAreSwallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.consumer.HandleMessage(ctx, message("sleep", "0")))
	assert.NoError(t, f.consumer.HandleMessage(ctx, message("sleep", "1")))
	assert.NoError(t, f.consumer.HandleMessage(ctx, message("sleep", "1")))

	assert.Equal(t, 1, f.tracker.starts)
	assert.Equal(t, 2, f.metrics.dropped["invalid_transition"])
}

func TestHandleMessage_StartRequiresExactOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, payload := range []string{" 1\n", "1 ", "01", "true"} {
		require.NoError(t, f.consumer.HandleMessage(ctx, message("sleep", payload)))
	}

	// 非 "1" 的载荷都按结束处理；IDLE 下结束为无效转换
	assert.Equal(t, 0, f.tracker.starts)
	assert.Equal(t, 4, f.metrics.dropped["invalid_transition"])

	require.NoError(t, f.consumer.HandleMessage(ctx, message("sleep", "1")))
	require.NoError(t, f.consumer.HandleMessage(ctx, message("sleep", " 1\n")))
	assert.Equal(t, 1, f.tracker.starts)
	assert.Equal(t, 1, f.tracker.ends)
}

func TestHandleMessage_DataWhileIdleIsStoredNotBuffered(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.consumer.HandleMessage(context.Background(), message("sensor/data", normalPayload)))

	assert.Empty(t, f.tracker.samples)
	assert.Len(t, f.readings.stored, 1)
	require.NotNil(t, f.cache.latest)
	assert.Equal(t, 98.0, f.cache.latest.SpO2)
}

func TestHandleMessage_MalformedPayload(t *testing.T) {
	f := newFixture(t)

	err := f.consumer.HandleMessage(context.Background(), message("sensor/data", "{heartRate:"))

	assert.True(t, errors.Is(err, ErrMalformedMessage))
	assert.Equal(t, 1, f.metrics.dropped["malformed"])
	assert.Empty(t, f.readings.stored)
}

func TestHandleMessage_ZeroFieldSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.consumer.HandleMessage(ctx, message("sleep", "1")))

	err := f.consumer.HandleMessage(ctx, message("sensor/data", `{"heartRate":0,"spo2":98,"temperature":36.8,"acceleration":1.0}`))

	require.NoError(t, err)
	assert.Empty(t, f.readings.stored)
	assert.Empty(t, f.tracker.samples)
	assert.Equal(t, 1, f.metrics.dropped["sensor_not_ready"])
}

func TestHandleMessage_DuplicateDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.consumer.HandleMessage(ctx, message("sleep", "1")))

	msg := message("sensor/data", normalPayload)
	require.NoError(t, f.consumer.HandleMessage(ctx, msg))
	msg.Duplicate = true
	require.NoError(t, f.consumer.HandleMessage(ctx, msg))

	assert.Len(t, f.tracker.samples, 1)
	assert.Equal(t, 1, f.metrics.dropped["duplicate"])
}

func TestHandleMessage_QoS0NotDeduplicated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.consumer.HandleMessage(ctx, message("sleep", "1")))

	msg := mqttcommon.Message{Topic: "sensor/data", Payload: []byte(normalPayload)}
	require.NoError(t, f.consumer.HandleMessage(ctx, msg))
	require.NoError(t, f.consumer.HandleMessage(ctx, msg))

	assert.Len(t, f.tracker.samples, 2)
}

func TestHandleMessage_FallAlert(t *testing.T) {
	f := newFixture(t)

	payload := `{"heartRate":120,"spo2":98,"temperature":36.8,"acceleration":2.5}`
	require.NoError(t, f.consumer.HandleMessage(context.Background(), message("sensor/data", payload)))
	require.NoError(t, f.consumer.Stop(context.Background()))

	require.Len(t, f.readings.stored, 1)
	assert.True(t, f.readings.stored[0].IsFall)
	assert.True(t, f.readings.stored[0].IsAbnormal)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	require.Len(t, f.notifier.falls, 1)
	assert.Equal(t, int64(1), f.notifier.falls[0].ID)
	assert.Equal(t, 2.5, f.notifier.falls[0].Acceleration)
}

func TestHandleMessage_StoreFailureStillBuffers(t *testing.T) {
	f := newFixture(t)
	f.readings.err = errors.New("db down")
	ctx := context.Background()
	require.NoError(t, f.consumer.HandleMessage(ctx, message("sleep", "1")))

	require.NoError(t, f.consumer.HandleMessage(ctx, message("sensor/data", normalPayload)))

	assert.Len(t, f.tracker.samples, 1)
	assert.Equal(t, 0, f.metrics.stored)
}

func TestPublishThresholds(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.consumer.PublishThresholds())

	require.Len(t, f.broker.published, 1)
	p := f.broker.published[0]
	assert.Equal(t, "sensor/settings", p.topic)
	assert.Equal(t, byte(1), p.qos)
	assert.True(t, p.retained)

	var settings models.DeviceSettings
	require.NoError(t, json.Unmarshal(p.payload, &settings))
	assert.Equal(t, models.DefaultThresholds().DeviceSettings(), settings)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.consumer.Start(ctx) }()

	require.Eventually(t, func() bool { return f.broker.subscribed() == 2 }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	require.NoError(t, f.consumer.Stop(context.Background()))

	assert.ElementsMatch(t, []string{"sleep", "sensor/data"}, f.broker.unsubscribed)
}
