package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PushConfig 推送网关（MQTT broker）配置
type PushConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	TopicPrefix string // 每个 actor 一个主题：<prefix><actor_id>
}

// SentimentConfig 外部情绪分析协作方配置
type SentimentConfig struct {
	BaseURL   string
	TimeoutMS int
}

// SignalThresholds 信号检测阈值（可被 YAML 文件集中覆盖）
type SignalThresholds struct {
	TrendWindowDays    int     `yaml:"trend_window_days"`     // 趋势窗口（天），默认 3
	TrendAlertBelow    float64 `yaml:"trend_alert_below"`     // 均值低于该值触发趋势报警，默认 4.0
	TrendHighBelow     float64 `yaml:"trend_high_below"`      // 均值低于该值报警升级为 high，默认 3.0
	SuppressionHours   int     `yaml:"suppression_hours"`     // 趋势报警抑制窗口（小时），默认 24
	OfflineGraceSec    int     `yaml:"offline_grace_sec"`     // 掉线去抖窗口（秒），默认 3
	PresenceTTLSec     int     `yaml:"presence_ttl_sec"`      // Redis presence 镜像 TTL（秒），默认 5
	CallRingTimeoutSec int     `yaml:"call_ring_timeout_sec"` // 呼叫振铃超时（秒），默认 30
	HelpPressRetries   int     `yaml:"help_press_retries"`    // help-press 持久化重试次数，默认 3
}

// DefaultThresholds 默认信号检测阈值
func DefaultThresholds() SignalThresholds {
	return SignalThresholds{
		TrendWindowDays:    3,
		TrendAlertBelow:    4.0,
		TrendHighBelow:     3.0,
		SuppressionHours:   24,
		OfflineGraceSec:    3,
		PresenceTTLSec:     5,
		CallRingTimeoutSec: 30,
		HelpPressRetries:   3,
	}
}

// Config 信号服务配置
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Push      PushConfig
	Sentiment SentimentConfig

	HTTP struct {
		Addr string
	}

	Signal SignalThresholds

	// 可选的阈值覆盖文件（阈值按部署集中配置，不做 per-subject 覆盖）
	ThresholdsFile string

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量 + 可选 YAML 阈值文件）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "carelink")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.Push.Broker = getEnv("PUSH_BROKER", "tcp://localhost:1883")
	cfg.Push.ClientID = getEnv("PUSH_CLIENT_ID", "carelink-signal")
	cfg.Push.Username = getEnv("PUSH_USERNAME", "")
	cfg.Push.Password = getEnv("PUSH_PASSWORD", "")
	cfg.Push.QoS = 1
	cfg.Push.TopicPrefix = getEnv("PUSH_TOPIC_PREFIX", "push/actor/")

	cfg.Sentiment.BaseURL = getEnv("SENTIMENT_BASE_URL", "")
	cfg.Sentiment.TimeoutMS = 800

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8086")

	cfg.Signal = DefaultThresholds()

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.ThresholdsFile = getEnv("THRESHOLDS_FILE", "")
	if cfg.ThresholdsFile != "" {
		if err := cfg.loadThresholdsFile(cfg.ThresholdsFile); err != nil {
			return nil, fmt.Errorf("failed to load thresholds file: %w", err)
		}
	}

	return cfg, nil
}

// loadThresholdsFile 从 YAML 文件覆盖阈值（文件中省略的字段保持默认值）
func (c *Config) loadThresholdsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	overrides := c.Signal
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	c.Signal = overrides
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
