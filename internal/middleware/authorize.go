package middleware

import (
	"github.com/gin-gonic/gin"
)

// RequireRolesAny checks that the request carries at least one of the
// required roles (set by AuthMiddleware).
func RequireRolesAny(required ...string) gin.HandlerFunc {
	reqSet := make(map[string]struct{}, len(required))
	for _, r := range trimAll(required) {
		reqSet[r] = struct{}{}
	}
	return func(c *gin.Context) {
		var roles []string
		if v, ok := c.Get("roles"); ok {
			switch t := v.(type) {
			case []string:
				roles = t
			case string:
				if t != "" {
					roles = []string{t}
				}
			}
		}
		for _, r := range roles {
			if _, ok := reqSet[r]; ok {
				c.Next()
				return
			}
		}
		forbidden(c, "insufficient role")
	}
}
