package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/intra-cms-api/internal/middleware"
	"github.com/noah-isme/intra-cms-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func siteFromContext(c *gin.Context) models.SiteContext {
	value, exists := c.Get(middleware.ContextSiteKey)
	if !exists {
		return models.SiteContext{}
	}
	site, ok := value.(models.SiteContext)
	if !ok {
		return models.SiteContext{}
	}
	return site
}
