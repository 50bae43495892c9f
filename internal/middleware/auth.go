package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"studio/web/internal/config"
	"studio/web/internal/flash"
	"studio/web/internal/models"
	"studio/web/internal/service"
)

const (
	identityKey = "current_identity"

	LoginPath        = "/auth/login"
	RegisterPath     = "/auth/register"
	MsgLoginRequired = "Please log in to access this page"
)

type IdentityResolver interface {
	Resolve(ctx context.Context, token string, mode service.ResolveMode) (models.Identity, error)
}

// SessionCookie writes and reads the cookie carrying the session token.
type SessionCookie struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

func NewSessionCookie(cfg config.SessionConfig) SessionCookie {
	return SessionCookie{Name: cfg.CookieName, MaxAge: cfg.TTL, Secure: cfg.Secure}
}

func (sc SessionCookie) Set(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sc.Name, token, int(sc.MaxAge.Seconds()), "/", "", sc.Secure, true)
}

func (sc SessionCookie) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sc.Name, "", -1, "/", "", sc.Secure, true)
}

func (sc SessionCookie) Token(c *gin.Context) string {
	token, err := c.Cookie(sc.Name)
	if err != nil {
		return ""
	}
	return token
}

// CurrentIdentity returns the identity attached to the request, or nil for
// anonymous requests.
func CurrentIdentity(c *gin.Context) *models.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, ok := v.(models.Identity)
	if !ok {
		return nil
	}
	return &identity
}

// LoadIdentity attaches the login-time identity when the request carries a
// live session. It never blocks a request.
func LoadIdentity(resolver IdentityResolver, cookie SessionCookie, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := cookie.Token(c)
		if token == "" {
			c.Next()
			return
		}

		identity, err := resolver.Resolve(c.Request.Context(), token, service.ResolveSnapshot)
		switch {
		case err == nil:
			c.Set(identityKey, identity)
		case errors.Is(err, service.ErrUnauthenticated):
			cookie.Clear(c)
		default:
			log.Warn().Err(err).Str("request_id", requestID(c)).Msg("load identity failed")
		}

		c.Next()
	}
}

// RequireUser admits only requests whose session resolves against the
// current user record. The fresh identity replaces the login-time one.
func RequireUser(resolver IdentityResolver, cookie SessionCookie, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ensureUser(c, resolver, cookie, log) {
			return
		}
		c.Next()
	}
}

// ensureUser aborts the request and reports false when it carries no valid
// session.
func ensureUser(c *gin.Context, resolver IdentityResolver, cookie SessionCookie, log zerolog.Logger) bool {
	identity, err := resolver.Resolve(c.Request.Context(), cookie.Token(c), service.ResolveRevalidated)
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			cookie.Clear(c)
			redirectToLogin(c)
			return false
		}
		log.Error().Err(err).Str("request_id", requestID(c)).Msg("resolve session failed")
		abortWithErrorPage(c, http.StatusInternalServerError)
		return false
	}

	c.Set(identityKey, identity)
	return true
}

func redirectToLogin(c *gin.Context) {
	c.Set(identityKey, nil)
	flash.Set(c, flash.KindError, MsgLoginRequired)
	c.Redirect(http.StatusFound, LoginPath)
	c.Abort()
}
