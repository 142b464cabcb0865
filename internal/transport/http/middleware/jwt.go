package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"orgrag/internal/pkg/jwtutil"
	"orgrag/internal/transport/http/response"
)

const (
	ContextUserIDKey         = "user_id"
	ContextOrganizationIDKey = "organization_id"
	ContextRoleKey           = "role"
)

// AuthJWT verifies the bearer token and stores the caller's user, organization
// and role on the context. Handlers never take the organization from the request.
func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextOrganizationIDKey, claims.OrganizationID)
		c.Set(ContextRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole lets the request through only when the caller has one of roles.
// It must run after AuthJWT.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRoleKey)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "insufficient role")
		c.Abort()
	}
}

// RequireAdmin allows admins and super-admins.
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(jwtutil.RoleAdmin, jwtutil.RoleSuperAdmin)
}
