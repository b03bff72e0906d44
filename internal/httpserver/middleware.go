package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	authz "pressroom/internal/auth"
	"pressroom/internal/handler"
	authsvc "pressroom/internal/service/auth"
	"pressroom/pkg/metrics"
)

// AuthMiddleware rejects requests without a valid bearer token and stores
// the resolved identity for the handlers.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := authsvc.ExtractToken(c.Request)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization token"})
			return
		}

		identity, err := authsvc.ParseToken(tokenStr, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		handler.SetIdentity(c, identity)
		c.Next()
	}
}

// OptionalAuthMiddleware parses the token when present but lets anonymous
// requests through. Used on routes that are public with an authenticated
// upgrade path.
func OptionalAuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenStr := authsvc.ExtractToken(c.Request); tokenStr != "" {
			if identity, err := authsvc.ParseToken(tokenStr, jwtSecret); err == nil {
				handler.SetIdentity(c, identity)
			}
		}
		c.Next()
	}
}

// RequirePermission gates a route on the caller's role permissions. The
// engine re-checks permissions internally; this keeps obviously unauthorized
// requests out of the service layer.
func RequirePermission(p authz.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get("identity")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization token"})
			return
		}
		identity := v.(authz.Identity)
		if !identity.Can(p) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		c.Next()
	}
}

// RequireAdmin gates a route on the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get("identity")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization token"})
			return
		}
		identity := v.(authz.Identity)
		if !identity.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// MetricsMiddleware records request durations per route template and status.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
