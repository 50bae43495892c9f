package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"studio/web/internal/flash"
	"studio/web/internal/models"
	"studio/web/internal/service"
)

const MsgAdminRequired = "Access denied. Admin privileges required."

// RequireRole must run after RequireUser. Denied requests go to the home
// page, never to the URL they asked for.
func RequireRole(role models.UserRole, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ensureRole(c, role, log) {
			return
		}
		c.Next()
	}
}

// GuardPrefix applies RequireUser and RequireRole to requests under prefix
// that matched no route, so unknown admin URLs are denied like known ones.
func GuardPrefix(prefix string, role models.UserRole, resolver IdentityResolver, cookie SessionCookie, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path != prefix && !strings.HasPrefix(path, prefix+"/") {
			c.Next()
			return
		}
		if !ensureUser(c, resolver, cookie, log) || !ensureRole(c, role, log) {
			return
		}
		c.Next()
	}
}

func ensureRole(c *gin.Context, role models.UserRole, log zerolog.Logger) bool {
	identity := CurrentIdentity(c)

	err := service.Authorize(identity, role)
	switch {
	case err == nil:
		return true
	case errors.Is(err, service.ErrUnauthenticated):
		redirectToLogin(c)
	default:
		log.Warn().
			Str("user_id", identity.UserID).
			Str("role", string(identity.Role)).
			Str("required", string(role)).
			Str("path", c.Request.URL.Path).
			Msg("access denied")
		flash.Set(c, flash.KindError, MsgAdminRequired)
		c.Redirect(http.StatusFound, "/")
		c.Abort()
	}
	return false
}
