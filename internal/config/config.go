package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	// 容器镜像可能没有系统时区数据
	_ "time/tzdata"

	"github.com/hoanvar/LTN/internal/classifier"
	"github.com/hoanvar/LTN/internal/models"
	"github.com/hoanvar/LTN/internal/platform/config"

	"github.com/joho/godotenv"
)

// Config sleepwatch 配置（服务与批处理命令共用）
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	Sleep struct {
		SleepTopic    string // 会话开始/结束主题，payload "1" 表示开始
		DataTopic     string // 遥测主题
		SettingsTopic string // 阈值下发主题（retained, QoS 1）
		Timezone      string // 按小时分组使用的时区，如 "Asia/Ho_Chi_Minh"
		ModelDir      string // sleep_model.json / scaler.json 所在目录
		DedupSize     int    // 最近消息 ID 去重容量
	}

	Thresholds models.Thresholds
	Heuristic  models.HeuristicCriteria
	Forest     classifier.Params

	Cache struct {
		LatestKey     string
		LatestTTL     time.Duration
		SessionStream string
		StreamMaxLen  int64
		JobLockKey    string
		JobLockTTL    time.Duration
	}

	Alert struct {
		WebhookURL string
		Timeout    time.Duration
		RetryCount int
	}

	HTTP struct {
		Addr string // 运维接口（/healthz, /metrics），为空则不启动
	}

	Metrics struct {
		PushgatewayURL string // 批处理任务结束后推送指标，为空则不推送
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置：先读取 .env（可选），再读环境变量
func Load() (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "sleepwatch",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "sleepwatch",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Sleep.SleepTopic = getEnv("SLEEP_TOPIC", "sleep")
	cfg.Sleep.DataTopic = getEnv("SLEEP_DATA_TOPIC", "sensor/data")
	cfg.Sleep.SettingsTopic = getEnv("SLEEP_SETTINGS_TOPIC", "sensor/settings")
	cfg.Sleep.Timezone = getEnv("SLEEP_TIMEZONE", "UTC")
	cfg.Sleep.ModelDir = getEnv("SLEEP_MODEL_DIR", "models")
	cfg.Sleep.DedupSize = getEnvInt("SLEEP_DEDUP_SIZE", 100)

	th := models.DefaultThresholds()
	th.HeartRateMin = getEnvFloat("THRESHOLD_HEART_RATE_MIN", th.HeartRateMin)
	th.HeartRateMax = getEnvFloat("THRESHOLD_HEART_RATE_MAX", th.HeartRateMax)
	th.SpO2Min = getEnvFloat("THRESHOLD_SPO2_MIN", th.SpO2Min)
	th.SpO2Max = getEnvFloat("THRESHOLD_SPO2_MAX", th.SpO2Max)
	th.TemperatureMin = getEnvFloat("THRESHOLD_TEMPERATURE_MIN", th.TemperatureMin)
	th.TemperatureMax = getEnvFloat("THRESHOLD_TEMPERATURE_MAX", th.TemperatureMax)
	th.AccelerationMin = getEnvFloat("THRESHOLD_ACCELERATION_MIN", th.AccelerationMin)
	th.AccelerationMax = getEnvFloat("THRESHOLD_ACCELERATION_MAX", th.AccelerationMax)
	cfg.Thresholds = th

	hc := models.DefaultHeuristicCriteria()
	hc.HeartRateMin = getEnvFloat("HEURISTIC_HEART_RATE_MIN", hc.HeartRateMin)
	hc.HeartRateMax = getEnvFloat("HEURISTIC_HEART_RATE_MAX", hc.HeartRateMax)
	hc.SpO2Min = getEnvFloat("HEURISTIC_SPO2_MIN", hc.SpO2Min)
	hc.TemperatureMin = getEnvFloat("HEURISTIC_TEMPERATURE_MIN", hc.TemperatureMin)
	hc.TemperatureMax = getEnvFloat("HEURISTIC_TEMPERATURE_MAX", hc.TemperatureMax)
	hc.AccelerationMax = getEnvFloat("HEURISTIC_ACCELERATION_MAX", hc.AccelerationMax)
	cfg.Heuristic = hc

	fp := classifier.DefaultParams()
	fp.NTrees = getEnvInt("FOREST_TREES", fp.NTrees)
	fp.MaxDepth = getEnvInt("FOREST_MAX_DEPTH", fp.MaxDepth)
	fp.MinSamplesSplit = getEnvInt("FOREST_MIN_SAMPLES_SPLIT", fp.MinSamplesSplit)
	fp.MinSamplesLeaf = getEnvInt("FOREST_MIN_SAMPLES_LEAF", fp.MinSamplesLeaf)
	fp.Seed = int64(getEnvInt("FOREST_SEED", int(fp.Seed)))
	cfg.Forest = fp

	cfg.Cache.LatestKey = getEnv("CACHE_LATEST_KEY", "sleepwatch:device:latest")
	cfg.Cache.LatestTTL = getEnvDuration("CACHE_LATEST_TTL", 5*time.Minute)
	cfg.Cache.SessionStream = getEnv("SESSION_STREAM", "sleepwatch:sessions:stream")
	cfg.Cache.StreamMaxLen = int64(getEnvInt("SESSION_STREAM_MAXLEN", 10000))
	cfg.Cache.JobLockKey = getEnv("JOB_LOCK_KEY", "sleepwatch:lock:batch")
	cfg.Cache.JobLockTTL = getEnvDuration("JOB_LOCK_TTL", 30*time.Minute)

	cfg.Alert.WebhookURL = getEnv("ALERT_WEBHOOK_URL", "")
	cfg.Alert.Timeout = getEnvDuration("ALERT_TIMEOUT", 10*time.Second)
	cfg.Alert.RetryCount = getEnvInt("ALERT_RETRY_COUNT", 3)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":9090")
	cfg.Metrics.PushgatewayURL = getEnv("PUSHGATEWAY_URL", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Sleep.SleepTopic == "" || c.Sleep.DataTopic == "" {
		return fmt.Errorf("sleep and data topics must be set")
	}
	if c.Sleep.DedupSize < 1 {
		return fmt.Errorf("SLEEP_DEDUP_SIZE must be >= 1, got %d", c.Sleep.DedupSize)
	}
	if c.Thresholds.AccelerationMin >= c.Thresholds.AccelerationMax {
		return fmt.Errorf("acceleration min (%v) must be below max (%v)", c.Thresholds.AccelerationMin, c.Thresholds.AccelerationMax)
	}
	if err := c.Forest.Validate(); err != nil {
		return fmt.Errorf("invalid forest parameters: %w", err)
	}
	return c.validateForestBounds()
}

// 线上训练的超参数下限，比 classifier.Params.Validate 更严格
const (
	minForestTrees     = 100
	maxForestDepth     = 10
	minForestSplitLeaf = 2
)

func (c *Config) validateForestBounds() error {
	f := c.Forest
	switch {
	case f.NTrees < minForestTrees:
		return fmt.Errorf("FOREST_TREES must be >= %d, got %d", minForestTrees, f.NTrees)
	case f.MaxDepth < 1 || f.MaxDepth > maxForestDepth:
		return fmt.Errorf("FOREST_MAX_DEPTH must be in [1, %d], got %d", maxForestDepth, f.MaxDepth)
	case f.MinSamplesSplit < minForestSplitLeaf:
		return fmt.Errorf("FOREST_MIN_SAMPLES_SPLIT must be >= %d, got %d", minForestSplitLeaf, f.MinSamplesSplit)
	case f.MinSamplesLeaf < minForestSplitLeaf:
		return fmt.Errorf("FOREST_MIN_SAMPLES_LEAF must be >= %d, got %d", minForestSplitLeaf, f.MinSamplesLeaf)
	}
	return nil
}

// Location 解析时区
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Sleep.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SLEEP_TIMEZONE %q: %w", c.Sleep.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
