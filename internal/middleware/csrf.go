package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"studio/web/internal/security"
)

const (
	CSRFField  = "_csrf"
	CSRFHeader = "X-CSRF-Token"

	csrfKey = "csrf_token"
)

// CSRF must run after LoadIdentity. Requests from signed-in browsers that
// change state must echo the token rendered into their forms, except on the
// exempt paths, whose forms are served to anonymous visitors.
func CSRF(secret string, cookie SessionCookie, log zerolog.Logger, exempt ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(exempt))
	for _, path := range exempt {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		sessionToken := cookie.Token(c)
		if CurrentIdentity(c) == nil || sessionToken == "" {
			c.Next()
			return
		}
		c.Set(csrfKey, security.CSRFToken(secret, sessionToken))

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		got := c.PostForm(CSRFField)
		if got == "" {
			got = c.GetHeader(CSRFHeader)
		}
		if !security.ValidCSRFToken(secret, sessionToken, got) {
			log.Warn().
				Str("path", c.Request.URL.Path).
				Str("request_id", requestID(c)).
				Msg("csrf token rejected")
			abortWithErrorPage(c, http.StatusForbidden)
			return
		}

		c.Next()
	}
}

// CSRFToken returns the token to embed in forms, or "" for anonymous
// requests.
func CSRFToken(c *gin.Context) string {
	return c.GetString(csrfKey)
}
