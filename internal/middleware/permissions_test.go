package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHasPermission(t *testing.T) {
	cases := []struct {
		granted  []string
		required string
		want     bool
	}{
		{[]string{"*"}, "automations.write", true},
		{[]string{"automations.*"}, "automations.write", true},
		{[]string{"automations.*"}, "automations", true},
		{[]string{"automations.read"}, "automations.write", false},
		{[]string{"auto.*"}, "automations.read", false},
		{nil, "", true},
		{nil, "clients.read", false},
		{[]string{" clients.read "}, "clients.read", true},
	}
	for _, tc := range cases {
		if got := HasPermission(tc.granted, tc.required); got != tc.want {
			t.Errorf("HasPermission(%v, %q) = %v, want %v", tc.granted, tc.required, got, tc.want)
		}
	}
}

func TestRequirePermissionsAny(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("permissions", []string{"executions.read"})
		c.Next()
	})
	r.GET("/ok", RequirePermissionsAny("automations.read", "executions.read"), func(c *gin.Context) { c.Status(200) })
	r.GET("/no", RequirePermissionsAny("automations.write"), func(c *gin.Context) { c.Status(200) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ok", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/no", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}
