package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"studio/web/internal/flash"
	"studio/web/internal/middleware"
	"studio/web/internal/models"
	"studio/web/internal/service"
)

const (
	recentUsersLimit = 5
	usersPageLimit   = 200
)

type userForm struct {
	Name     string `form:"name"`
	Email    string `form:"email"`
	Password string `form:"password"`
	Role     string `form:"role"`
}

func (h HandlerSet) AdminIndex(c *gin.Context) {
	h.redirect(c, "/admin/dashboard")
}

func (h HandlerSet) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	data := gin.H{"title": "Dashboard", "active": "admin", "userCount": 0, "recentUsers": []models.User{}}

	count, err := h.users.Count(ctx)
	if err == nil {
		var recent []models.User
		recent, err = h.users.List(ctx, recentUsersLimit)
		data["userCount"] = count
		data["recentUsers"] = recent
	}
	if err != nil {
		h.log.Error().Err(err).Msg("load dashboard failed")
		flash.Set(c, flash.KindError, "Error loading dashboard")
	}

	h.render(c, http.StatusOK, "admin_dashboard.html", data)
}

func (h HandlerSet) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context(), usersPageLimit)
	if err != nil {
		h.log.Error().Err(err).Msg("list users failed")
		flash.Set(c, flash.KindError, "Error loading users")
		users = []models.User{}
	}

	h.render(c, http.StatusOK, "admin_users.html", gin.H{
		"title":  "Users",
		"active": "admin",
		"users":  users,
	})
}

func (h HandlerSet) NewUserPage(c *gin.Context) {
	h.render(c, http.StatusOK, "admin_user_form.html", gin.H{
		"title":   "Add user",
		"active":  "admin",
		"action":  "/admin/users/add",
		"editing": false,
		"form":    userForm{Role: string(models.UserRoleUser)},
	})
}

func (h HandlerSet) CreateUser(c *gin.Context) {
	var form userForm
	if err := c.ShouldBind(&form); err != nil {
		flash.Set(c, flash.KindError, "Error adding user")
		h.redirect(c, "/admin/users/add")
		return
	}

	user, err := h.users.Create(c.Request.Context(), service.CreateUserInput{
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
		Role:     form.Role,
	})
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			flash.Set(c, flash.KindError, verr.Message)
		case errors.Is(err, service.ErrDuplicateEmail):
			flash.Set(c, flash.KindError, msgDuplicateEmail)
		default:
			h.log.Error().Err(err).Msg("admin create user failed")
			flash.Set(c, flash.KindError, "Error adding user")
		}
		h.redirect(c, "/admin/users/add")
		return
	}

	h.log.Info().Str("actor_id", actorID(c)).Str("user_id", user.ID).Msg("admin added user")
	flash.Set(c, flash.KindSuccess, "User added successfully")
	h.redirect(c, "/admin/users")
}

func (h HandlerSet) EditUserPage(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			flash.Set(c, flash.KindError, "User not found")
		} else {
			h.log.Error().Err(err).Msg("load user failed")
			flash.Set(c, flash.KindError, "Error loading user")
		}
		h.redirect(c, "/admin/users")
		return
	}

	h.render(c, http.StatusOK, "admin_user_form.html", gin.H{
		"title":   "Edit user",
		"active":  "admin",
		"action":  "/admin/users/edit/" + user.ID,
		"editing": true,
		"form":    userForm{Name: user.Name, Email: user.Email, Role: string(user.Role)},
	})
}

func (h HandlerSet) UpdateUser(c *gin.Context) {
	id := c.Param("id")
	editPath := "/admin/users/edit/" + id

	var form userForm
	if err := c.ShouldBind(&form); err != nil {
		flash.Set(c, flash.KindError, "Error updating user")
		h.redirect(c, editPath)
		return
	}

	_, err := h.users.Update(c.Request.Context(), id, service.UpdateUserInput{
		Name:     form.Name,
		Email:    form.Email,
		Role:     form.Role,
		Password: form.Password,
	})
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			flash.Set(c, flash.KindError, verr.Message)
		case errors.Is(err, service.ErrUserNotFound):
			flash.Set(c, flash.KindError, "User not found")
			h.redirect(c, "/admin/users")
			return
		case errors.Is(err, service.ErrDuplicateEmail):
			flash.Set(c, flash.KindError, msgDuplicateEmail)
		default:
			h.log.Error().Err(err).Msg("admin update user failed")
			flash.Set(c, flash.KindError, "Error updating user")
		}
		h.redirect(c, editPath)
		return
	}

	h.log.Info().Str("actor_id", actorID(c)).Str("user_id", id).Msg("admin updated user")
	flash.Set(c, flash.KindSuccess, "User updated successfully")
	h.redirect(c, "/admin/users")
}

func (h HandlerSet) DeleteUser(c *gin.Context) {
	err := h.users.Delete(c.Request.Context(), actorID(c), c.Param("id"))
	switch {
	case err == nil:
		flash.Set(c, flash.KindSuccess, "User deleted successfully")
	case errors.Is(err, service.ErrSelfDelete):
		flash.Set(c, flash.KindError, "You cannot delete your own account")
	case errors.Is(err, service.ErrUserNotFound):
		flash.Set(c, flash.KindError, "User not found")
	default:
		h.log.Error().Err(err).Msg("admin delete user failed")
		flash.Set(c, flash.KindError, "Error deleting user")
	}
	h.redirect(c, "/admin/users")
}

func actorID(c *gin.Context) string {
	if identity := middleware.CurrentIdentity(c); identity != nil {
		return identity.UserID
	}
	return ""
}
