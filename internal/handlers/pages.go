package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) Home(c *gin.Context) {
	h.render(c, http.StatusOK, "home.html", gin.H{"active": "home"})
}

// Account shows the re-validated identity of the signed-in user.
func (h HandlerSet) Account(c *gin.Context) {
	h.render(c, http.StatusOK, "account.html", gin.H{"title": "Your account", "active": "account"})
}
