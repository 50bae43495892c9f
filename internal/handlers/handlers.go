package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"studio/web/internal/flash"
	"studio/web/internal/middleware"
	"studio/web/internal/models"
	"studio/web/internal/service"
)

type Authenticator interface {
	middleware.IdentityResolver
	Register(ctx context.Context, input service.RegisterInput) (models.User, error)
	Login(ctx context.Context, input service.LoginInput) (service.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

type UserManager interface {
	List(ctx context.Context, limit int) ([]models.User, error)
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context, id string) (models.User, error)
	Create(ctx context.Context, input service.CreateUserInput) (models.User, error)
	Update(ctx context.Context, id string, input service.UpdateUserInput) (models.User, error)
	Delete(ctx context.Context, actorID, id string) error
}

// Pinger is a dependency probed by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HandlerSet struct {
	log         zerolog.Logger
	environment string
	auth        Authenticator
	users       UserManager
	cookie      middleware.SessionCookie
	database    Pinger
	cache       Pinger
}

type Options struct {
	Environment string
	Cookie      middleware.SessionCookie
	Database    Pinger
	Cache       Pinger
}

func NewHandlerSet(log zerolog.Logger, auth Authenticator, users UserManager, opts Options) HandlerSet {
	return HandlerSet{
		log:         log,
		environment: opts.Environment,
		auth:        auth,
		users:       users,
		cookie:      opts.Cookie,
		database:    opts.Database,
		cache:       opts.Cache,
	}
}

func (h HandlerSet) Register(router *gin.Engine) {
	router.GET("/healthz", h.Health)
	router.GET("/", h.Home)

	auth := router.Group("/auth")
	{
		auth.GET("/login", h.LoginPage)
		auth.POST("/login", h.Login)
		auth.GET("/register", h.RegisterPage)
		auth.POST("/register", h.RegisterUser)
		auth.POST("/logout", h.Logout)
	}

	requireUser := middleware.RequireUser(h.auth, h.cookie, h.log)

	router.GET("/account", requireUser, h.Account)

	admin := router.Group("/admin")
	admin.Use(
		requireUser,
		middleware.RequireRole(models.UserRoleAdmin, h.log),
	)
	{
		admin.GET("", h.AdminIndex)
		admin.GET("/dashboard", h.Dashboard)
		admin.GET("/users", h.ListUsers)
		admin.GET("/users/add", h.NewUserPage)
		admin.POST("/users/add", h.CreateUser)
		admin.GET("/users/edit/:id", h.EditUserPage)
		admin.POST("/users/edit/:id", h.UpdateUser)
		admin.POST("/users/delete/:id", h.DeleteUser)
	}

	router.NoRoute(
		middleware.GuardPrefix("/admin", models.UserRoleAdmin, h.auth, h.cookie, h.log),
		h.NotFound,
	)
}

// render fills the fields every page reads before executing the template.
func (h HandlerSet) render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	for _, key := range []string{"title", "active"} {
		if _, ok := data[key]; !ok {
			data[key] = ""
		}
	}
	data["user"] = middleware.CurrentIdentity(c)
	data["flashes"] = flash.Messages(c)
	data["csrf"] = middleware.CSRFToken(c)
	c.HTML(status, name, data)
}

func (h HandlerSet) redirect(c *gin.Context, location string) {
	c.Redirect(http.StatusFound, location)
}

func (h HandlerSet) NotFound(c *gin.Context) {
	h.render(c, http.StatusNotFound, "not_found.html", gin.H{"title": "Not found"})
}

// landing is where a user goes after logging in.
func landing(role models.UserRole) string {
	if role == models.UserRoleAdmin {
		return "/admin/dashboard"
	}
	return "/account"
}
