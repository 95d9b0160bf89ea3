package routes

import (
	"cirrusdrive/controllers"
	"cirrusdrive/middleware"
	"cirrusdrive/models"

	"github.com/gin-gonic/gin"
)

func RegisterAdminRoutes(rg *gin.RouterGroup, container *ServiceContainer) {
	adminController := controllers.NewAdminController(container.AdminService, container.WatchService)

	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(container.Config.JWTSecret))
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("/users", adminController.CreateUser)
		admin.GET("/users", adminController.ListUsers)
		admin.GET("/users/watch", adminController.WatchUsers) // SSE snapshot stream
		admin.DELETE("/users/:id", adminController.DeleteUser)
	}
}
