package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.NotEmpty(t, cfg.Server.Host)
	assert.NotZero(t, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Database.Name)
	assert.NotEmpty(t, cfg.JWT.Secret)
	assert.NotEmpty(t, cfg.Log.Level)
}

func TestConfig_AutomationDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, 10*time.Second, cfg.Automation.ActionTimeout)
	assert.Equal(t, "gte", cfg.Automation.DaysPolicy)
	assert.False(t, cfg.Automation.LogSkipped)
	assert.Equal(t, 3, cfg.Automation.Retry.MaxAttempts)
	assert.NotEmpty(t, cfg.Automation.Scanner.Cron)
	assert.Equal(t, "database", cfg.Queue.Driver)
}

func TestConfig_DatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "crm"}
	assert.Equal(t, "host=db user=u password=p dbname=crm port=5433 sslmode=disable TimeZone=UTC", d.DSN())
}

func TestSetDefaults_EnvOverride(t *testing.T) {
	t.Setenv("CRMFLOW_AUTOMATION_DAYS_POLICY", "eq")
	t.Setenv("CRMFLOW_SERVER_PORT", "9090")

	v := viper.New()
	SetDefaults(v)
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "eq", cfg.Automation.DaysPolicy)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Automation.ActionTimeout)
	assert.Equal(t, "crmflow", cfg.Database.Name)
}

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		name   string
		lc     LogConfig
		level  logrus.Level
		isText bool
	}{
		{"json debug", LogConfig{Level: "debug", Format: "json", Output: "stdout"}, logrus.DebugLevel, false},
		{"text warn", LogConfig{Level: "warn", Format: "text", Output: "stdout"}, logrus.WarnLevel, true},
		{"invalid level falls back", LogConfig{Level: "loud", Output: "stdout"}, logrus.InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logrus.New()
			logger.SetOutput(&bytes.Buffer{})
			require.NoError(t, ConfigureLogger(logger, tt.lc))
			assert.Equal(t, tt.level, logger.GetLevel())
			_, isText := logger.Formatter.(*logrus.TextFormatter)
			assert.Equal(t, tt.isText, isText)
		})
	}
}

func TestConfigureLogger_FileOutput(t *testing.T) {
	logger := logrus.New()
	path := filepath.Join(t.TempDir(), "logs", "crm.log")
	require.NoError(t, ConfigureLogger(logger, LogConfig{Level: "info", Output: "file", FilePath: path, MaxSize: 1}))
	logger.Info("hello")
	assert.FileExists(t, path)
}
