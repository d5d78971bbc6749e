package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"crmflow/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// 角色未在 rbac.roles 中配置时使用的默认权限
var defaultRolePermissions = map[string][]string{
	"owner": {"*"},
	"admin": {"*"},
	"staff": {
		"clients.read", "clients.write",
		"tasks.*",
		"appointments.*",
		"notifications.*",
		"templates.read",
		"automations.read",
		"dashboard.read",
	},
	"viewer": {
		"clients.read", "tasks.read", "appointments.read",
		"automations.read", "dashboard.read",
	},
}

// parseToken verifies an HS256 token and returns its claims.
func parseToken(token, secret string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithJSONNumber(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// IssueToken signs a token for userID with the given roles. Used by the CLI
// and tests; the HTTP API itself never issues tokens.
func IssueToken(cfg *config.Config, userID uint, roles []string, ttl time.Duration) (string, error) {
	if cfg == nil || cfg.JWT.Secret == "" {
		return "", errors.New("jwt secret not configured")
	}
	if ttl <= 0 {
		ttl = cfg.JWT.ExpiresIn
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"sub":     fmt.Sprintf("%d", userID),
		"roles":   roles,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWT.Secret))
}

// AuthMiddleware enforces Authorization: Bearer <jwt> on protected routes.
// On success, it injects "user_id", "roles" and "permissions" into gin.Context.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	secret := ""
	var rbac config.RBACConfig
	if cfg != nil {
		secret = cfg.JWT.Secret
		rbac = cfg.Security.RBAC
	}
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "missing bearer token",
			})
			return
		}
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "invalid token or server misconfig",
			})
			return
		}
		claims, err := parseToken(token, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": err.Error(),
			})
			return
		}

		uid, ok := userIDFromClaims(claims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "token has no user",
			})
			return
		}
		c.Set("user_id", uid)

		roles := normalizeStringList(claims["roles"])
		if len(roles) > 0 {
			c.Set("roles", roles)
		}

		// 显式权限 + 角色展开
		perms := normalizeStringList(firstNonNil(claims["perms"], claims["permissions"]))
		for _, role := range roles {
			mapped, configured := rbac.Roles[role]
			if !rbac.Enabled || !configured {
				mapped = defaultRolePermissions[role]
			}
			for _, p := range mapped {
				if s := strings.TrimSpace(p); s != "" {
					perms = append(perms, s)
				}
			}
		}
		perms = dedupeStrings(perms)
		if len(perms) > 0 {
			c.Set("permissions", perms)
		}

		c.Next()
	}
}

// bearerToken reads the token from the Authorization header, falling back to
// ?token= so browsers can open the notification websocket.
func bearerToken(c *gin.Context) string {
	ah := c.GetHeader("Authorization")
	if len(ah) > len("bearer ") && strings.EqualFold(ah[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(ah[len("bearer "):])
	}
	if c.Request.Method == http.MethodGet {
		return strings.TrimSpace(c.Query("token"))
	}
	return ""
}

func userIDFromClaims(claims jwt.MapClaims) (uint, bool) {
	raw := firstNonNil(claims["user_id"], claims["sub"])
	switch t := raw.(type) {
	case float64:
		if t > 0 {
			return uint(t), true
		}
	case json.Number:
		if n, err := t.Int64(); err == nil && n > 0 {
			return uint(n), true
		}
	case string:
		var n uint
		if _, err := fmt.Sscanf(t, "%d", &n); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

func firstNonNil(vals ...interface{}) interface{} {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func normalizeStringList(v interface{}) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []interface{}:
		var out []string
		for _, it := range t {
			if s, ok := it.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// UserID returns the authenticated user set by AuthMiddleware.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	uid, ok := v.(uint)
	return uid, ok && uid > 0
}
