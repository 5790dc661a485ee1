package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole rejects requests whose token does not carry one of the
// allowed roles. Must run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		roleStr, ok := role.(string)
		if !ok || !allowed[roleStr] {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ActorRole returns the role claim set by AuthMiddleware.
func ActorRole(c *gin.Context) string {
	role, _ := c.Get("role")
	s, _ := role.(string)
	return s
}
