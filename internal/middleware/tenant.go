package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/intra-cms-api/internal/service"
	"github.com/noah-isme/intra-cms-api/pkg/response"
)

// ContextSiteKey is the gin context key storing the resolved site context.
const ContextSiteKey = "currentSite"

// Tenant resolves the request's site context from the tenant header and
// attaches it for downstream permission evaluation.
func Tenant(sites *service.SiteService, header string) gin.HandlerFunc {
	if header == "" {
		header = "X-Site-Tenant"
	}
	return func(c *gin.Context) {
		site, err := sites.Resolve(c.Request.Context(), c.GetHeader(header))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextSiteKey, site)
		c.Next()
	}
}
