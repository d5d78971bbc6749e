package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"crmflow/internal/automation"
	"crmflow/internal/services"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestServiceErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[error]int{
		fmt.Errorf("wrap: %w", services.ErrClientNotFound):    http.StatusNotFound,
		services.ErrRuleNotFound:                               http.StatusNotFound,
		fmt.Errorf("%w: nome vazio", services.ErrInvalidInput): http.StatusBadRequest,
		fmt.Errorf("%w: x", automation.ErrInvalidRule):         http.StatusBadRequest,
		services.ErrChannelUnavailable:                         http.StatusServiceUnavailable,
		errors.New("disk full"):                                http.StatusInternalServerError,
	}
	for err, want := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		serviceError(c, quietLogger(), "do thing", err)
		if w.Code != want {
			t.Errorf("%v: expected %d, got %d", err, want, w.Code)
		}
		var body ErrorResponse
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		assert.Equal(t, err.Error(), body.Message)
	}
}

func TestPaginated(t *testing.T) {
	p := paginated([]int{1}, 41, 0, 20)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 3, p.Pages)
	p = paginated(nil, 0, 2, 500)
	assert.Equal(t, 100, p.PageSize)
	assert.Equal(t, 0, p.Pages)
}

func TestHandlersRequireUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDashboardRoutes(r.Group("/api/v1"), NewDashboardHandler(nil, quietLogger()))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/dashboard/cobranca", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestHealth_NoDatabase(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(nil, nil, nil, nil, quietLogger())
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status: %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/ready", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready status: %d", w.Code)
	}
}
