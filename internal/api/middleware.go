package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ModelGovernor/internal/config"
	"github.com/router-for-me/ModelGovernor/internal/security"
)

// managementAuthMiddleware guards the management routes. A request passes
// with either a valid operator JWT or a static management key matching one
// of the configured bcrypt hashes.
func managementAuthMiddleware(sec config.SecurityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		if sec.JWTSecret != "" {
			if claims, errJWT := security.ParseToken(sec.JWTSecret, token); errJWT == nil {
				c.Set("operator", claims.Operator)
				c.Next()
				return
			}
		}
		for _, hash := range sec.ManagementKeys {
			if security.CheckManagementKey(hash, token) {
				c.Set("operator", "management-key")
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}
