package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"crmflow/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Version 由 cmd 在构建时覆盖
var Version = "dev"

// BreakerReporter exposes per-channel circuit breaker state.
type BreakerReporter interface {
	BreakerStats() map[string]interface{}
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	config   *config.Config
	db       *gorm.DB
	redis    *redis.Client
	breakers BreakerReporter
	logger   *logrus.Logger
}

// NewHealthHandler 创建健康检查处理器；redis 与 breakers 可为空
func NewHealthHandler(cfg *config.Config, db *gorm.DB, rdb *redis.Client, breakers BreakerReporter, logger *logrus.Logger) *HealthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HealthHandler{config: cfg, db: db, redis: rdb, breakers: breakers, logger: logger}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

// ServiceInfo 服务信息
type ServiceInfo struct {
	Status  string      `json:"status"`
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	Uptime    string `json:"uptime"`
	GoVersion string `json:"go_version"`
}

var startTime = time.Now()

// Health 汇总数据库、redis 与外发渠道熔断状态；熔断打开只算 degraded
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceInfo),
		System: SystemInfo{
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			GoVersion: runtime.Version(),
		},
	}

	healthy := true
	degraded := false
	h.checkDatabase(ctx, &response, &healthy)
	if h.redis != nil {
		h.checkRedis(ctx, &response, &healthy)
	}
	if h.breakers != nil {
		stats := h.breakers.BreakerStats()
		info := ServiceInfo{Status: "healthy", Details: stats}
		for _, v := range stats {
			if s, ok := v.(map[string]interface{}); ok && s["state"] == "open" {
				info.Status = "degraded"
				degraded = true
			}
		}
		response.Services["outreach"] = info
	}

	statusCode := http.StatusOK
	switch {
	case !healthy:
		response.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	case degraded:
		response.Status = "degraded"
	}
	c.JSON(statusCode, response)
}

// Ready 只检查数据库
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	ready := h.pingDatabase(ctx) == nil
	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, gin.H{
		"ready":     ready,
		"timestamp": time.Now(),
	})
}

func (h *HealthHandler) pingDatabase(ctx context.Context) error {
	if h.db == nil {
		return errDatabaseNotInitialized
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (h *HealthHandler) checkDatabase(ctx context.Context, response *HealthResponse, healthy *bool) {
	start := time.Now()
	info := ServiceInfo{Status: "healthy"}
	if err := h.pingDatabase(ctx); err != nil {
		info.Status = "unhealthy"
		info.Error = err.Error()
		*healthy = false
	}
	info.Latency = time.Since(start).String()
	if h.db != nil {
		info.Details = map[string]interface{}{"driver": h.db.Dialector.Name()}
	}
	response.Services["database"] = info
}

func (h *HealthHandler) checkRedis(ctx context.Context, response *HealthResponse, healthy *bool) {
	start := time.Now()
	info := ServiceInfo{Status: "healthy"}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		info.Status = "unhealthy"
		info.Error = err.Error()
		*healthy = false
		h.logger.WithError(err).Warn("redis health check failed")
	}
	info.Latency = time.Since(start).String()
	if h.config != nil {
		info.Details = map[string]interface{}{"host": h.config.Redis.Host, "port": h.config.Redis.Port}
	}
	response.Services["redis"] = info
}

type healthError string

func (e healthError) Error() string { return string(e) }

const errDatabaseNotInitialized = healthError("database connection not initialized")
