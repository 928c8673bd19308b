package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-roster-api/internal/models"
	appErrors "github.com/noah-isme/class-roster-api/pkg/errors"
	"github.com/noah-isme/class-roster-api/pkg/response"
)

// RBAC enforces role-based access control for routes.
func RBAC(allowed ...models.StaffRole) gin.HandlerFunc {
	allowedRoles := make(map[models.StaffRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedRoles[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowedRoles[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role not allowed for this action"))
			c.Abort()
			return
		}
		c.Next()
	}
}
