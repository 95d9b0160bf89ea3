package routes

import (
	"cirrusdrive/controllers"
	"cirrusdrive/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterAuthRoutes(rg *gin.RouterGroup, container *ServiceContainer) {
	authController := controllers.NewAuthController(container.AuthService)

	auth := rg.Group("/auth")
	{
		auth.POST("/signup", authController.SignUp)
		auth.POST("/login", authController.Login)
	}

	me := rg.Group("/auth")
	me.Use(middleware.AuthMiddleware(container.Config.JWTSecret))
	{
		me.GET("/me", authController.Me)
	}
}
