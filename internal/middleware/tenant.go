package middleware

import (
	"net/http"
	"strings"

	"pulse/internal/services"

	"github.com/gin-gonic/gin"
)

const tenantKey = "tenant"

// Tenant returns the tenant resolved by TenantMiddleware. "" is the
// operator view.
func Tenant(c *gin.Context) string {
	return c.GetString(tenantKey)
}

// TenantMiddleware resolves the calling tenant. With auth enabled the tenant
// comes from a bearer token (Authorization header or token query parameter);
// otherwise it is read from the tenant query parameter.
func TenantMiddleware(auth *services.AuthService, sl *SecurityLogger) gin.HandlerFunc {
	validator := NewInputValidator()

	return func(c *gin.Context) {
		if auth == nil {
			tenant := c.Query("tenant")
			if tenant != "" && !validator.ValidateTenant(tenant) {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid tenant"})
				return
			}
			c.Set(tenantKey, tenant)
			c.Next()
			return
		}

		token := bearerToken(c)
		if token == "" {
			sl.LogFailedAuth(c.ClientIP(), "missing token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		if !validator.ValidateToken(token) {
			sl.LogFailedAuth(c.ClientIP(), "malformed token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			sl.LogFailedAuth(c.ClientIP(), "invalid token: "+err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(tenantKey, claims.Tenant)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return c.Query("token")
}
