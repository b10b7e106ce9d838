// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication. The middleware verifies
// the Authorization header against the HS256 token manager and stores the
// authenticated identity in the Gin context under the keys the logging and
// rate-limit middleware already read ("userID", "userRole").
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/auth"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
)

// Context keys for the authenticated identity.
const (
	ctxKeyUserID   = "userID"
	ctxKeyUserRole = "userRole"
)

// UserID returns the authenticated user ID, or "" when the request is
// anonymous.
func UserID(c *gin.Context) string {
	return userIDFromCtx(c)
}

// RequireAuth verifies the "Authorization: Bearer <token>" header and aborts
// with 401 when it is missing or invalid. Tokens may also arrive in the
// "token" query parameter to support WebSocket upgrades, where browsers
// cannot set headers.
func RequireAuth(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			unauthorized(c, "missing bearer token")
			return
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}
		c.Set(ctxKeyUserID, claims.UserID)
		c.Set(ctxKeyUserRole, claims.Role)
		c.Next()
	}
}

// RequireAdmin aborts with 403 unless the authenticated user has the admin
// role. Must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := c.Get(ctxKeyUserRole); role != domain.UserRoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "forbidden",
				"message":    "admin access required",
			})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("token")
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
