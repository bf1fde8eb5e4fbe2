package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/mentora/mentora-pay-api/internal/models"
	appErrors "github.com/mentora/mentora-pay-api/pkg/errors"
	"github.com/mentora/mentora-pay-api/pkg/response"
)

// RequireRoles enforces role-based access control for routes. Mentors are a
// special case on payout routes: "SELF" grants access when the mentor id in
// the path matches the authenticated user.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return rbac(allowed...)
}

// SelfOrRoles behaves like RequireRoles but also admits the user whose id
// matches the mentorId path parameter.
func SelfOrRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, 0, len(roles)+1)
	allowed = append(allowed, "SELF")
	for _, r := range roles {
		allowed = append(allowed, string(r))
	}
	return rbac(allowed...)
}

func rbac(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		allowSelf := false
		allowedRoles := make(map[models.UserRole]struct{})
		for _, a := range allowed {
			if a == "SELF" {
				allowSelf = true
				continue
			}
			allowedRoles[models.UserRole(a)] = struct{}{}
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		if allowSelf {
			if targetID := c.Param("mentorId"); targetID != "" && targetID == claims.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
