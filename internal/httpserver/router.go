package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pressroom/internal/auth"
	"pressroom/internal/handler"
)

// Deps carries everything the router wires together.
type Deps struct {
	Emails    *handler.EmailHandler
	Auth      *handler.AuthHandler
	JWTSecret string
	Pool      *pgxpool.Pool
}

// NewRouter builds the HTTP surface. Route-level permission checks are a
// first gate only; the workflow engine enforces authorization again on every
// action.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), MetricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := d.Pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", OptionalAuthMiddleware(d.JWTSecret), d.Auth.Register)
		authGroup.POST("/login", d.Auth.Login)
	}

	api := r.Group("/", AuthMiddleware(d.JWTSecret))
	{
		api.POST("/ingest/email", RequireAdmin(), d.Emails.Ingest)

		emails := api.Group("/emails")
		{
			emails.GET("", RequirePermission(auth.PermissionContent), d.Emails.List)
			emails.GET("/:id", RequirePermission(auth.PermissionContent), d.Emails.Get)
			emails.POST("/:id/analyze", RequirePermission(auth.PermissionContent), d.Emails.Analyze)
			emails.POST("/:id/approve", RequirePermission(auth.PermissionContent), d.Emails.Approve)
			emails.POST("/:id/prepare", RequirePermission(auth.PermissionContent), d.Emails.Prepare)
			emails.POST("/:id/publish", RequirePermission(auth.PermissionWordPress), d.Emails.Publish)
			emails.POST("/:id/reject", RequirePermission(auth.PermissionContent), d.Emails.Reject)
			emails.POST("/:id/archive", RequireAdmin(), d.Emails.Archive)
			emails.PATCH("/:id/priority", RequirePermission(auth.PermissionContent), d.Emails.UpdatePriority)
			emails.PATCH("/:id/assign", RequireAdmin(), d.Emails.Assign)
		}

		api.GET("/dashboard/stats", RequirePermission(auth.PermissionAnalytics), d.Emails.DashboardStats)
	}

	return r
}
