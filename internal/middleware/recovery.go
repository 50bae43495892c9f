package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("error", r).
					Str("request_id", requestID(c)).
					Str("path", c.Request.URL.Path).
					Msg("panic recovered")
				abortWithErrorPage(c, http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// abortWithErrorPage renders the generic error page. Nothing about the
// failure reaches the client.
func abortWithErrorPage(c *gin.Context, status int) {
	if c.Writer.Written() {
		c.Abort()
		return
	}
	c.HTML(status, "error.html", gin.H{
		"title":   "Error",
		"active":  "",
		"user":    CurrentIdentity(c),
		"flashes": nil,
		"csrf":    CSRFToken(c),
	})
	c.Abort()
}
