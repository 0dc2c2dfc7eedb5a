package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gestionequipos/activos-api/internal/authz"
	"github.com/gestionequipos/activos-api/internal/middleware"
	"github.com/gestionequipos/activos-api/internal/models"
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

// actorFromContext builds the authorization actor from the JWT claims.
// An empty actor (no user id) carries no permissions at all.
func actorFromContext(c *gin.Context) authz.Actor {
	claims := claimsFromContext(c)
	if claims == nil {
		return authz.Actor{}
	}
	return authz.Actor{
		UserID:   claims.UserID,
		FullName: claims.FullName,
		Admin:    claims.Role == models.RoleAdmin,
		SiteID:   claims.SiteID,
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			return value
		}
	}
	return fallback
}

func queryBool(c *gin.Context, key string) *bool {
	switch strings.ToLower(c.Query(key)) {
	case "true":
		value := true
		return &value
	case "false":
		value := false
		return &value
	}
	return nil
}

func queryString(c *gin.Context, key string) *string {
	if raw := strings.TrimSpace(c.Query(key)); raw != "" {
		return &raw
	}
	return nil
}
