package routes

import (
	"cirrusdrive/controllers"
	"cirrusdrive/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterFileRoutes(rg *gin.RouterGroup, container *ServiceContainer) {
	fileController := controllers.NewFileController(
		container.FileService,
		container.WatchService,
		container.Config.MaxFileSize,
	)

	files := rg.Group("/files")
	files.Use(middleware.AuthMiddleware(container.Config.JWTSecret))
	{
		files.POST("", fileController.UploadFile)
		files.GET("", fileController.ListFiles)
		files.GET("/watch", fileController.WatchFiles) // SSE snapshot stream
		files.GET("/:id", fileController.GetFile)
		files.GET("/:id/download", fileController.DownloadFile)
		files.DELETE("/:id", fileController.DeleteFile)
	}
}
