package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt" yaml:"jwt"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security" yaml:"security"`
	Automation AutomationConfig `mapstructure:"automation" yaml:"automation"`
	Queue      QueueConfig      `mapstructure:"queue" yaml:"queue"`
	Email      EmailConfig      `mapstructure:"email" yaml:"email"`
	WhatsApp   WhatsAppConfig   `mapstructure:"whatsapp" yaml:"whatsapp"`
	Slack      SlackConfig      `mapstructure:"slack" yaml:"slack"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	Name            string        `mapstructure:"name" yaml:"name"`
	SSLMode         string        `mapstructure:"sslmode" yaml:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	Password     string `mapstructure:"password" yaml:"password"`
	DB           int    `mapstructure:"db" yaml:"db"`
	PoolSize     int    `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`
}

type JWTConfig struct {
	Secret    string        `mapstructure:"secret" yaml:"secret"`
	ExpiresIn time.Duration `mapstructure:"expires_in" yaml:"expires_in"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // json, text
	Output     string `mapstructure:"output" yaml:"output"` // stdout, file, both
	FilePath   string `mapstructure:"file_path" yaml:"file_path"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`       // MB
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`         // days
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // number of backup files
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type MonitoringConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	MetricsPath string        `mapstructure:"metrics_path" yaml:"metrics_path"`
	Tracing     TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// TracingConfig OpenTelemetry 追踪配置
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`         // OTLP gRPC 端点，例如 localhost:4317
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`         // 是否使用明文（本地/开发）
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"` // 采样率 0.0~1.0
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
}

type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors" yaml:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting" yaml:"rate_limiting"`
	RBAC         RBACConfig         `mapstructure:"rbac" yaml:"rbac"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
}

type RateLimitingConfig struct {
	Enabled           bool     `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int      `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int      `mapstructure:"burst" yaml:"burst"`
	KeyHeader         string   `mapstructure:"key_header" yaml:"key_header"`
	Whitelist         []string `mapstructure:"whitelist" yaml:"whitelist"`
}

// RBACConfig 角色到权限的映射
type RBACConfig struct {
	Enabled bool                `mapstructure:"enabled" yaml:"enabled"`
	Roles   map[string][]string `mapstructure:"roles" yaml:"roles"`
}

// AutomationConfig controls the rule engine.
type AutomationConfig struct {
	Enabled             bool          `mapstructure:"enabled" yaml:"enabled"`
	ActionTimeout       time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	DaysPolicy          string        `mapstructure:"days_policy" yaml:"days_policy"` // gte, eq
	LogSkipped          bool          `mapstructure:"log_skipped" yaml:"log_skipped"`
	PendingPollInterval time.Duration `mapstructure:"pending_poll_interval" yaml:"pending_poll_interval"`
	PendingBatchSize    int           `mapstructure:"pending_batch_size" yaml:"pending_batch_size"`
	Retry               RetryConfig   `mapstructure:"retry" yaml:"retry"`
	Scanner             ScannerConfig `mapstructure:"scanner" yaml:"scanner"`
	CircuitBreaker      BreakerConfig `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
}

type ScannerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Cron    string `mapstructure:"cron" yaml:"cron"`
}

type BreakerConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxFailures     int           `mapstructure:"max_failures" yaml:"max_failures"`
	ResetTimeout    time.Duration `mapstructure:"reset_timeout" yaml:"reset_timeout"`
	HalfOpenMaxReqs int           `mapstructure:"half_open_max_requests" yaml:"half_open_max_requests"`
}

// QueueConfig selects where delayed actions wait: "database" or "redis".
type QueueConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Key    string `mapstructure:"key" yaml:"key"`
}

type EmailConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Host          string `mapstructure:"host" yaml:"host"`
	Port          int    `mapstructure:"port" yaml:"port"`
	Username      string `mapstructure:"username" yaml:"username"`
	Password      string `mapstructure:"password" yaml:"password"`
	From          string `mapstructure:"from" yaml:"from"`
	FromName      string `mapstructure:"from_name" yaml:"from_name"`
	StartTLS      bool   `mapstructure:"starttls" yaml:"starttls"`
	SkipTLSVerify bool   `mapstructure:"skip_tls_verify" yaml:"skip_tls_verify"`
}

type WhatsAppConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	PhoneNumberID string        `mapstructure:"phone_number_id" yaml:"phone_number_id"`
	Token         string        `mapstructure:"token" yaml:"token"`
	CountryCode   string        `mapstructure:"country_code" yaml:"country_code"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
	Channel    string `mapstructure:"channel" yaml:"channel"`
}

// DSN 构造 postgres 连接串
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, sslmode)
}

// Load 从 viper 读取配置，缺省项回落到 GetDefaultConfig
func Load() *Config {
	SetDefaults(viper.GetViper())
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}
	return &config
}

// SetDefaults pushes GetDefaultConfig values into v so that env overrides and
// partial config files both resolve to a complete tree.
func SetDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetEnvPrefix("CRMFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)

	v.SetDefault("redis.host", d.Redis.Host)
	v.SetDefault("redis.port", d.Redis.Port)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.min_idle_conns", d.Redis.MinIdleConns)

	v.SetDefault("jwt.secret", d.JWT.Secret)
	v.SetDefault("jwt.expires_in", d.JWT.ExpiresIn)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.file_path", d.Log.FilePath)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("monitoring.enabled", d.Monitoring.Enabled)
	v.SetDefault("monitoring.metrics_path", d.Monitoring.MetricsPath)
	v.SetDefault("monitoring.tracing.enabled", d.Monitoring.Tracing.Enabled)
	v.SetDefault("monitoring.tracing.endpoint", d.Monitoring.Tracing.Endpoint)
	v.SetDefault("monitoring.tracing.insecure", d.Monitoring.Tracing.Insecure)
	v.SetDefault("monitoring.tracing.sample_ratio", d.Monitoring.Tracing.SampleRatio)
	v.SetDefault("monitoring.tracing.service_name", d.Monitoring.Tracing.ServiceName)

	v.SetDefault("security.cors.enabled", d.Security.CORS.Enabled)
	v.SetDefault("security.cors.allowed_origins", d.Security.CORS.AllowedOrigins)
	v.SetDefault("security.cors.allowed_methods", d.Security.CORS.AllowedMethods)
	v.SetDefault("security.cors.allowed_headers", d.Security.CORS.AllowedHeaders)
	v.SetDefault("security.rate_limiting.enabled", d.Security.RateLimiting.Enabled)
	v.SetDefault("security.rate_limiting.requests_per_minute", d.Security.RateLimiting.RequestsPerMinute)
	v.SetDefault("security.rate_limiting.burst", d.Security.RateLimiting.Burst)

	v.SetDefault("automation.enabled", d.Automation.Enabled)
	v.SetDefault("automation.action_timeout", d.Automation.ActionTimeout)
	v.SetDefault("automation.days_policy", d.Automation.DaysPolicy)
	v.SetDefault("automation.log_skipped", d.Automation.LogSkipped)
	v.SetDefault("automation.pending_poll_interval", d.Automation.PendingPollInterval)
	v.SetDefault("automation.pending_batch_size", d.Automation.PendingBatchSize)
	v.SetDefault("automation.retry.max_attempts", d.Automation.Retry.MaxAttempts)
	v.SetDefault("automation.retry.initial_interval", d.Automation.Retry.InitialInterval)
	v.SetDefault("automation.retry.max_interval", d.Automation.Retry.MaxInterval)
	v.SetDefault("automation.scanner.enabled", d.Automation.Scanner.Enabled)
	v.SetDefault("automation.scanner.cron", d.Automation.Scanner.Cron)
	v.SetDefault("automation.circuit_breaker.enabled", d.Automation.CircuitBreaker.Enabled)
	v.SetDefault("automation.circuit_breaker.max_failures", d.Automation.CircuitBreaker.MaxFailures)
	v.SetDefault("automation.circuit_breaker.reset_timeout", d.Automation.CircuitBreaker.ResetTimeout)
	v.SetDefault("automation.circuit_breaker.half_open_max_requests", d.Automation.CircuitBreaker.HalfOpenMaxReqs)

	v.SetDefault("queue.driver", d.Queue.Driver)
	v.SetDefault("queue.key", d.Queue.Key)

	v.SetDefault("email.enabled", d.Email.Enabled)
	v.SetDefault("email.host", d.Email.Host)
	v.SetDefault("email.port", d.Email.Port)
	v.SetDefault("email.from", d.Email.From)
	v.SetDefault("email.from_name", d.Email.FromName)
	v.SetDefault("email.starttls", d.Email.StartTLS)

	v.SetDefault("whatsapp.enabled", d.WhatsApp.Enabled)
	v.SetDefault("whatsapp.base_url", d.WhatsApp.BaseURL)
	v.SetDefault("whatsapp.country_code", d.WhatsApp.CountryCode)
	v.SetDefault("whatsapp.timeout", d.WhatsApp.Timeout)

	v.SetDefault("slack.enabled", d.Slack.Enabled)
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "password",
			Name:            "crmflow",
			SSLMode:         "disable",
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: 3600 * time.Second,
		},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         6379,
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
		},
		JWT: JWTConfig{
			Secret:    "default-secret-key",
			ExpiresIn: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "./logs/crmflow.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
		Monitoring: MonitoringConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "crmflow",
			},
		},
		Security: SecurityConfig{
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
				AllowedHeaders: []string{"*"},
			},
			RateLimiting: RateLimitingConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             20,
			},
		},
		Automation: AutomationConfig{
			Enabled:             true,
			ActionTimeout:       10 * time.Second,
			DaysPolicy:          "gte",
			LogSkipped:          false,
			PendingPollInterval: time.Minute,
			PendingBatchSize:    100,
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
			Scanner: ScannerConfig{
				Enabled: true,
				Cron:    "0 * * * *",
			},
			CircuitBreaker: BreakerConfig{
				Enabled:         true,
				MaxFailures:     5,
				ResetTimeout:    60 * time.Second,
				HalfOpenMaxReqs: 1,
			},
		},
		Queue: QueueConfig{
			Driver: "database",
			Key:    "crmflow:acoes_pendentes",
		},
		Email: EmailConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     587,
			From:     "no-reply@crmflow.local",
			FromName: "CRM",
			StartTLS: true,
		},
		WhatsApp: WhatsAppConfig{
			Enabled:     false,
			BaseURL:     "https://graph.facebook.com/v19.0",
			CountryCode: "55",
			Timeout:     15 * time.Second,
		},
		Slack: SlackConfig{
			Enabled: false,
		},
	}
}
