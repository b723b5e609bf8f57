package middlewares

import (
	"strings"

	"bitbucket.org/mmdatafocus/fieldservice_sync/models"
	"bitbucket.org/mmdatafocus/fieldservice_sync/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware resolves the caller's credential. The Authorization
// bearer token is checked against the persisted session so a stale token
// from a previous login can't ride along; technician and tenant identity
// come from the JWT claims when the token parses, from the stored session
// otherwise (the token may be expired while the device is offline).
// Requests without a token pass through untouched; handlers that need a
// credential reject them.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		ctx := utils.SetTokenInContext(c.Request.Context(), token)

		if claims := utils.JwtClaims(token); claims != nil {
			ctx = utils.SetTechnicianIdInContext(ctx, claims.TechnicianId)
			ctx = utils.SetBusinessIdInContext(ctx, claims.BusinessId)
		} else if session, err := models.GetSession(ctx); err == nil && session.Token == token {
			ctx = utils.SetTechnicianIdInContext(ctx, session.TechnicianId)
			ctx = utils.SetTechnicianNameInContext(ctx, session.TechnicianName)
			ctx = utils.SetBusinessIdInContext(ctx, session.BusinessId)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
