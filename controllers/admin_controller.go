package controllers

import (
	"errors"
	"io"
	"net/http"

	"cirrusdrive/middleware"
	"cirrusdrive/services"
	"cirrusdrive/utils"

	"github.com/gin-gonic/gin"
)

type AdminController struct {
	adminService *services.AdminService
	watchService *services.WatchService
}

func NewAdminController(adminService *services.AdminService, watchService *services.WatchService) *AdminController {
	return &AdminController{
		adminService: adminService,
		watchService: watchService,
	}
}

type createUserRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

func (ac *AdminController) CreateUser(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if err := utils.ValidateEmail(req.Email); err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}
	if err := utils.ValidateDisplayName(req.Name); err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	user, err := ac.adminService.CreateUser(c.Request.Context(), sess, req.Email, req.Password, req.Name)
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		utils.ForbiddenResponse(c, "Admin role required")
		return
	case errors.Is(err, services.ErrAccountExists):
		utils.ConflictResponse(c, "An account with this email already exists", nil)
		return
	case err != nil:
		utils.InternalServerErrorResponse(c, "Failed to create account", nil)
		return
	}

	utils.CreatedResponse(c, "Account created", user)
}

func (ac *AdminController) ListUsers(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	users, err := ac.adminService.ListUsers(c.Request.Context(), sess)
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		utils.ForbiddenResponse(c, "Admin role required")
		return
	case err != nil:
		utils.InternalServerErrorResponse(c, "Failed to list users", nil)
		return
	}

	utils.SuccessResponse(c, "Users retrieved", users)
}

func (ac *AdminController) DeleteUser(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	err := ac.adminService.DeleteUser(c.Request.Context(), sess, c.Param("id"))
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		utils.ForbiddenResponse(c, "Admin role required")
		return
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, "User not found")
		return
	case err != nil:
		utils.InternalServerErrorResponse(c, "Failed to delete user; re-invoke to resume", nil)
		return
	}

	utils.SuccessResponse(c, "User and files deleted", nil)
}

// WatchUsers streams the full user list to administrators as server-sent
// events. Non-admin callers receive empty snapshots.
func (ac *AdminController) WatchUsers(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	snapshots, err := ac.watchService.WatchAllUsers(c.Request.Context(), sess)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to subscribe", nil)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		snapshot, ok := <-snapshots
		if !ok {
			return false
		}
		c.SSEvent("users", snapshot)
		return true
	})
}
