package middlewares

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/SecretSanta/middleware/jwt"
)

// Context keys set by AuthMiddleware.
const (
	ClientKey = "client"
	RoleKey   = "role"
)

// AuthMiddleware accepts a bearer token, or a token query parameter for
// websocket handshakes, whose role is one of roles.
func AuthMiddleware(tokens *jwt.TokenManager, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string

		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := tokens.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if len(roles) > 0 && !slices.Contains(roles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role " + claims.Role + " is not allowed here"})
			return
		}

		c.Set(ClientKey, claims.Client)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}
