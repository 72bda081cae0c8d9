package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jack/golang-shortlink-service/internal/service"
)

// ClientIDKey is the context key under which the authenticated client ID is
// stored for downstream handlers.
const ClientIDKey = "clientID"

// RequireAuth gates a route group behind bearer token authentication.
// Requests without a valid token are rejected with 401.
func RequireAuth(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Missing bearer token",
			})
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(ClientIDKey, claims.ClientID)
		c.Next()
	}
}
