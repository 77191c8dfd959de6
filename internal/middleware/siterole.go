package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/intra-cms-api/internal/models"
	appErrors "github.com/noah-isme/intra-cms-api/pkg/errors"
	"github.com/noah-isme/intra-cms-api/pkg/response"
)

// RequireSiteRoles blocks the request unless the authenticated user
// holds one of the given site-wide roles. Group and content-level
// checks stay in the services; this gate only covers admin surfaces.
func RequireSiteRoles(roles ...models.SiteRole) gin.HandlerFunc {
	allowed := make(map[models.SiteRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)
		if _, ok := allowed[claims.SiteRole]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
