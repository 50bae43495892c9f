package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"studio/web/internal/flash"
	"studio/web/internal/middleware"
	"studio/web/internal/service"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgDuplicateEmail     = "User already exists with this email."
	msgRegistered         = "Registration successful! Please log in."
	msgLoginFailed        = "An error occurred during login"
	msgRegisterFailed     = "An error occurred during registration"
)

type loginForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

type registerForm struct {
	Name            string `form:"name"`
	Email           string `form:"email"`
	Password        string `form:"password"`
	ConfirmPassword string `form:"confirmPassword"`
}

func (h HandlerSet) LoginPage(c *gin.Context) {
	if identity := middleware.CurrentIdentity(c); identity != nil {
		h.redirect(c, landing(identity.Role))
		return
	}
	h.render(c, http.StatusOK, "login.html", gin.H{"title": "Log in", "active": "login"})
}

func (h HandlerSet) Login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		flash.Set(c, flash.KindError, "Please provide valid email and password")
		h.redirect(c, middleware.LoginPath)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:    form.Email,
		Password: form.Password,
	})
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			flash.Set(c, flash.KindError, verr.Message)
		case errors.Is(err, service.ErrInvalidCredentials):
			flash.Set(c, flash.KindError, msgInvalidCredentials)
		default:
			h.log.Error().Err(err).Msg("login failed")
			flash.Set(c, flash.KindError, msgLoginFailed)
		}
		h.redirect(c, middleware.LoginPath)
		return
	}

	// A fresh token replaces whatever session the browser held before.
	if previous := h.cookie.Token(c); previous != "" {
		if err := h.auth.Logout(c.Request.Context(), previous); err != nil {
			h.log.Warn().Err(err).Msg("destroy previous session failed")
		}
	}

	h.cookie.Set(c, result.Session.Token)
	flash.Set(c, flash.KindSuccess, "Welcome back, "+result.User.Name+"!")
	h.redirect(c, landing(result.User.Role))
}

func (h HandlerSet) RegisterPage(c *gin.Context) {
	if identity := middleware.CurrentIdentity(c); identity != nil {
		h.redirect(c, landing(identity.Role))
		return
	}
	h.render(c, http.StatusOK, "register.html", gin.H{
		"title":  "Register",
		"active": "register",
		"form":   registerForm{},
	})
}

// RegisterUser handles self-registration. Any submitted role is ignored.
func (h HandlerSet) RegisterUser(c *gin.Context) {
	var form registerForm
	if err := c.ShouldBind(&form); err != nil {
		flash.Set(c, flash.KindError, msgRegisterFailed)
		h.redirect(c, "/auth/register")
		return
	}

	_, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Name:            form.Name,
		Email:           form.Email,
		Password:        form.Password,
		ConfirmPassword: form.ConfirmPassword,
	})
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			flash.Set(c, flash.KindError, verr.Message)
		case errors.Is(err, service.ErrDuplicateEmail):
			flash.Set(c, flash.KindError, msgDuplicateEmail)
		default:
			h.log.Error().Err(err).Msg("registration failed")
			flash.Set(c, flash.KindError, msgRegisterFailed)
		}
		h.redirect(c, "/auth/register")
		return
	}

	flash.Set(c, flash.KindSuccess, msgRegistered)
	h.redirect(c, middleware.LoginPath)
}

func (h HandlerSet) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), h.cookie.Token(c)); err != nil {
		h.log.Error().Err(err).Msg("logout failed")
	}
	h.cookie.Clear(c)
	h.redirect(c, "/")
}
