package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crmflow/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{JWT: config.JWTConfig{Secret: "test-secret", ExpiresIn: time.Hour}}
}

func doRequest(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_SetsUserAndPermissions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	token, err := IssueToken(cfg, 7, []string{"staff"}, 0)
	require.NoError(t, err)

	var gotUID uint
	var gotPerms []string
	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	r.GET("/me", func(c *gin.Context) {
		gotUID, _ = UserID(c)
		gotPerms = getGrantedPermissions(c)
		c.Status(http.StatusOK)
	})

	w := doRequest(r, http.MethodGet, "/me", token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, uint(7), gotUID)
	assert.Contains(t, gotPerms, "clients.write")
	assert.Contains(t, gotPerms, "tasks.*")
	assert.NotContains(t, gotPerms, "*")
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	// 缺少 token
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodGet, "/x", "").Code)

	// 错误的密钥
	other := &config.Config{JWT: config.JWTConfig{Secret: "other"}}
	bad, err := IssueToken(other, 1, nil, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodGet, "/x", bad).Code)

	// 已过期
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1,
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})
	s, err := expired.SignedString([]byte(cfg.JWT.Secret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodGet, "/x", s).Code)

	// 非 HS256 算法
	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"user_id": 1})
	s, err = hs512.SignedString([]byte(cfg.JWT.Secret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodGet, "/x", s).Code)

	// 没有用户
	anon := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"roles": []string{"owner"}})
	s, err = anon.SignedString([]byte(cfg.JWT.Secret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodGet, "/x", s).Code)
}

func TestAuthMiddleware_QueryTokenForWebSocket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	token, err := IssueToken(cfg, 3, []string{"owner"}, 0)
	require.NoError(t, err)

	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/ws?token="+token, "").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodPost, "/ws?token="+token, "").Code)
}

func TestAuthMiddleware_RBACRoleExpansion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.Security.RBAC = config.RBACConfig{
		Enabled: true,
		Roles: map[string][]string{
			"recepcao": {"clients.read", "appointments.*"},
		},
	}
	token, err := IssueToken(cfg, 1, []string{"recepcao"}, 0)
	require.NoError(t, err)

	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	r.Use(RequireResourcePermission("clients"))
	r.GET("/clients", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	r.POST("/clients", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	if w := doRequest(r, http.MethodGet, "/clients", token); w.Code != http.StatusOK {
		t.Fatalf("GET expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	if w := doRequest(r, http.MethodPost, "/clients", token); w.Code != http.StatusForbidden {
		t.Fatalf("POST expected 403 got %d", w.Code)
	}

	// 未配置的角色回落到默认映射
	owner, err := IssueToken(cfg, 1, []string{"owner"}, 0)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodPost, "/clients", owner).Code)
}

func TestRequireRolesAny(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("roles", []string{c.GetHeader("X-Role")})
		c.Next()
	})
	r.Use(RequireRolesAny("owner", "admin"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for role, want := range map[string]int{"owner": 200, "admin": 200, "staff": 403} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-Role", role)
		r.ServeHTTP(w, req)
		if w.Code != want {
			t.Errorf("role %s: expected %d, got %d", role, want, w.Code)
		}
	}
}
