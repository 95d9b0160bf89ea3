package controllers

import (
	"errors"

	"cirrusdrive/middleware"
	"cirrusdrive/services"
	"cirrusdrive/utils"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	authService *services.AuthService
}

func NewAuthController(authService *services.AuthService) *AuthController {
	return &AuthController{
		authService: authService,
	}
}

type signUpRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (ac *AuthController) SignUp(c *gin.Context) {
	var req signUpRequest
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

	user, token, err := ac.authService.SignUp(c.Request.Context(), req.Email, req.Password, req.Name)
	if errors.Is(err, services.ErrAccountExists) {
		utils.ConflictResponse(c, "An account with this email already exists", nil)
		return
	}
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to create account", nil)
		return
	}

	utils.CreatedResponse(c, "Account created", gin.H{
		"user":  user,
		"token": token,
	})
}

func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	user, token, err := ac.authService.Login(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		utils.UnauthorizedResponse(c, "Invalid email or password")
		return
	}
	if err != nil {
		utils.InternalServerErrorResponse(c, "Login failed", nil)
		return
	}

	utils.SuccessResponse(c, "Logged in", gin.H{
		"user":  user,
		"token": token,
	})
}

func (ac *AuthController) Me(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	user, err := ac.authService.CurrentUser(c.Request.Context(), sess)
	if errors.Is(err, services.ErrNotFound) {
		utils.UnauthorizedResponse(c, "Account no longer exists")
		return
	}
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to load profile", nil)
		return
	}

	utils.SuccessResponse(c, "Profile retrieved", user)
}
