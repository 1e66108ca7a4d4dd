package jwt

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinAuth validates the bearer token, enforces allowedRoles and stores the claims in the request context.
func GinAuth(mgr *Manager, allowedRoles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := FromAuthorization(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		_, claims, err := mgr.ParseAndValidate(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if err := RoleAllowed(claims, allowedRoles...); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}

		c.Request = c.Request.WithContext(InjectClaims(c.Request.Context(), claims))
		c.Next()
	}
}
