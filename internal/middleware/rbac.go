package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-portal/internal/models"
	appErrors "github.com/noah-isme/sma-adp-portal/pkg/errors"
	"github.com/noah-isme/sma-adp-portal/pkg/response"
)

// RBAC enforces role-based access control for routes using the signed-in user's role.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, a := range allowed {
		allowedRoles[models.UserRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		session, exists := SessionFrom(c)
		if !exists {
			response.Error(c, appErrors.Clone(appErrors.ErrSessionTerminated, "sign in required"))
			c.Abort()
			return
		}
		if session.User == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "user profile not loaded"))
			c.Abort()
			return
		}

		if _, ok := allowedRoles[session.User.Role]; ok {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}
