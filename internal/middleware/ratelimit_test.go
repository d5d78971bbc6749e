package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"crmflow/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func rateLimitedRouter(rl config.RateLimitingConfig) *gin.Engine {
	cfg := &config.Config{Security: config.SecurityConfig{RateLimiting: rl}}
	router := gin.New()
	router.Use(RateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := rateLimitedRouter(config.RateLimitingConfig{Enabled: false})

	// 应该允许所有请求
	for i := 0; i < 100; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("request %d: expected status 200, got %d", i, w.Code)
		}
	}
}

func TestRateLimitMiddleware_BasicLimiting(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := rateLimitedRouter(config.RateLimitingConfig{Enabled: true, RequestsPerMinute: 10, Burst: 5})

	// 前 5 个请求消耗 burst
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i, w.Code)
		}
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitMiddleware_KeyHeaderAndWhitelist(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := rateLimitedRouter(config.RateLimitingConfig{
		Enabled:           true,
		RequestsPerMinute: 1,
		Burst:             1,
		KeyHeader:         "X-API-Key",
		Whitelist:         []string{"interno"},
	})

	send := func(key string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.Header.Set("X-API-Key", key)
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
	// 不同 key 独立计数
	assert.Equal(t, http.StatusOK, send("b"))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, send("interno"))
	}
}
