package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "carelink", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "tcp://localhost:1883", cfg.Push.Broker)
	assert.Equal(t, "push/actor/", cfg.Push.TopicPrefix)
	assert.Equal(t, byte(1), cfg.Push.QoS)

	assert.Equal(t, 3, cfg.Signal.TrendWindowDays)
	assert.Equal(t, 4.0, cfg.Signal.TrendAlertBelow)
	assert.Equal(t, 3.0, cfg.Signal.TrendHighBelow)
	assert.Equal(t, 24, cfg.Signal.SuppressionHours)
	assert.Equal(t, 3, cfg.Signal.OfflineGraceSec)
	assert.Equal(t, 5, cfg.Signal.PresenceTTLSec)
	assert.Equal(t, 30, cfg.Signal.CallRingTimeoutSec)
	assert.Equal(t, 3, cfg.Signal.HelpPressRetries)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_USER", "test-user")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("PUSH_BROKER", "tcp://broker:1883")
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-user", cfg.Database.User)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "tcp://broker:1883", cfg.Push.Broker)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ThresholdsFile(t *testing.T) {
	os.Clearenv()

	dir := t.TempDir()
	path := filepath.Join(dir, "thresholds.yaml")
	content := []byte("trend_alert_below: 5.0\nsuppression_hours: 12\ncall_ring_timeout_sec: 45\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	os.Setenv("THRESHOLDS_FILE", path)
	defer os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	// 文件中的字段被覆盖
	assert.Equal(t, 5.0, cfg.Signal.TrendAlertBelow)
	assert.Equal(t, 12, cfg.Signal.SuppressionHours)
	assert.Equal(t, 45, cfg.Signal.CallRingTimeoutSec)

	// 文件中省略的字段保持默认值
	assert.Equal(t, 3, cfg.Signal.TrendWindowDays)
	assert.Equal(t, 3.0, cfg.Signal.TrendHighBelow)
}

func TestLoad_ThresholdsFileMissing(t *testing.T) {
	os.Clearenv()
	os.Setenv("THRESHOLDS_FILE", "/nonexistent/thresholds.yaml")
	defer os.Clearenv()

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load thresholds file")
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db-host",
		Port:     5433,
		User:     "u",
		Password: "p",
		Database: "carelink",
		SSLMode:  "disable",
	}

	dsn := cfg.GetDSN()
	assert.Equal(t, "host=db-host port=5433 user=u password=p dbname=carelink sslmode=disable", dsn)
}
