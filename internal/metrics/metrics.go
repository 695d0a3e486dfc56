// Package metrics Prometheus 指标
package metrics

import (
	"time"

	"github.com/hoanvar/LTN/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "sleepwatch"

// Metrics 服务指标集合（使用独立 Registry，便于测试）
type Metrics struct {
	Registry *prometheus.Registry

	messagesReceived *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
	sessionsStarted  prometheus.Counter
	sessionsEnded    *prometheus.CounterVec
	hoursScored      *prometheus.CounterVec
	readings         *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobRuns          *prometheus.CounterVec
}

// New 创建并注册全部指标
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_messages_received_total",
			Help:      "MQTT messages received by topic.",
		}, []string{"topic"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_messages_dropped_total",
			Help:      "MQTT messages dropped by reason.",
		}, []string{"reason"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sleep sessions started.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Sleep sessions ended by quality label.",
		}, []string{"quality"}),
		hoursScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hours_scored_total",
			Help:      "Hourly buckets scored by source (model, heuristic, fallback).",
		}, []string{"source"}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_readings_total",
			Help:      "Sensor readings persisted by classification.",
		}, []string{"kind"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_job_duration_seconds",
			Help:      "Duration of batch jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"job"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_job_runs_total",
			Help:      "Batch job runs by outcome.",
		}, []string{"job", "outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesReceived,
		m.messagesDropped,
		m.sessionsStarted,
		m.sessionsEnded,
		m.hoursScored,
		m.readings,
		m.jobDuration,
		m.jobRuns,
	)
	return m
}

// MessageReceived 收到一条消息
func (m *Metrics) MessageReceived(topic string) {
	m.messagesReceived.WithLabelValues(topic).Inc()
}

// MessageDropped 丢弃一条消息（malformed / duplicate / sensor_not_ready / invalid_transition）
func (m *Metrics) MessageDropped(reason string) {
	m.messagesDropped.WithLabelValues(reason).Inc()
}

// SessionStarted 会话开始
func (m *Metrics) SessionStarted() {
	m.sessionsStarted.Inc()
}

// SessionEnded 会话结束
func (m *Metrics) SessionEnded(q models.Quality) {
	m.sessionsEnded.WithLabelValues(string(q)).Inc()
}

// HourScored 一个小时完成评分
func (m *Metrics) HourScored(source string) {
	m.hoursScored.WithLabelValues(source).Inc()
}

// ReadingStored 一条遥测入库
func (m *Metrics) ReadingStored(isFall, isAbnormal bool) {
	kind := "normal"
	switch {
	case isFall:
		kind = "fall"
	case isAbnormal:
		kind = "abnormal"
	}
	m.readings.WithLabelValues(kind).Inc()
}

// ObserveJob 记录一次批处理任务
func (m *Metrics) ObserveJob(job string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	m.jobRuns.WithLabelValues(job, outcome).Inc()
}
