package routers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/SecretSanta/internal/handlers"
	"github.com/Gopher0727/SecretSanta/internal/middlewares"
	"github.com/Gopher0727/SecretSanta/middleware/jwt"
	logger "github.com/Gopher0727/SecretSanta/middleware/log"
	"github.com/Gopher0727/SecretSanta/utils/ratelimit"
)

// Deps carries everything the routes need. WS may be nil when bridges only
// use Kafka; Limiter may be nil when rate limiting is off.
type Deps struct {
	Tokens        *jwt.TokenManager
	Auth          *handlers.AuthHandler
	Events        *handlers.EventHandler
	Admin         *handlers.AdminHandler
	WS            *handlers.WSHandler
	Limiter       *ratelimit.Limiter
	TokenRule     ratelimit.Rule
	MaxConcurrent int
	Logger        *logger.Logger
}

// SetupRoutes registers middleware and all routes on r.
func SetupRoutes(r *gin.Engine, d Deps) {
	r.Use(middlewares.RecoveryMiddleware(d.Logger))
	r.Use(middlewares.TraceMiddleware(d.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"Status": "OK",
		})
	})

	// The websocket route sits outside the concurrency limit; a connection
	// holds its slot for its whole lifetime.
	if d.WS != nil {
		r.GET("/ws", middlewares.AuthMiddleware(d.Tokens, jwt.RoleBridge), d.WS.Serve)
	}

	api := r.Group("/api/v1")
	api.Use(middlewares.MaxConcurrencyMiddleware(d.MaxConcurrent))

	RegisterAuthRoutes(api, d)
	RegisterEventRoutes(api, d)
	RegisterAdminRoutes(api, d)
}

func RegisterAuthRoutes(api *gin.RouterGroup, d Deps) {
	byIP := func(c *gin.Context) string { return "ip:" + c.ClientIP() }
	api.POST("/auth/token",
		middlewares.RateLimitMiddleware(d.Limiter, d.TokenRule, byIP, d.Logger),
		d.Auth.Token,
	)
}

func RegisterEventRoutes(api *gin.RouterGroup, d Deps) {
	events := api.Group("/events")
	events.Use(middlewares.AuthMiddleware(d.Tokens, jwt.RoleBridge))
	{
		events.POST("", d.Events.Handle)
	}
}

func RegisterAdminRoutes(api *gin.RouterGroup, d Deps) {
	admin := api.Group("/admin")
	admin.Use(middlewares.AuthMiddleware(d.Tokens, jwt.RoleAdmin))
	{
		admin.POST("/close-all", d.Admin.CloseAll)
	}
}
