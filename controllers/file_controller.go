package controllers

import (
	"errors"
	"io"
	"net/http"

	"cirrusdrive/middleware"
	"cirrusdrive/models"
	"cirrusdrive/services"
	"cirrusdrive/utils"

	"github.com/gin-gonic/gin"
)

type FileController struct {
	fileService  *services.FileService
	watchService *services.WatchService
	maxFileSize  int64
}

func NewFileController(fileService *services.FileService, watchService *services.WatchService, maxFileSize int64) *FileController {
	return &FileController{
		fileService:  fileService,
		watchService: watchService,
		maxFileSize:  maxFileSize,
	}
}

func (fc *FileController) UploadFile(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, "No file provided", nil)
		return
	}

	if err := utils.ValidateFileName(fileHeader.Filename); err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}
	if err := utils.ValidateFileSize(fileHeader.Size, fc.maxFileSize); err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.BadRequestResponse(c, "Failed to read uploaded file", nil)
		return
	}
	defer file.Close()

	rec, err := fc.fileService.Upload(c.Request.Context(), sess, services.UploadRequest{
		Name:        fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Data:        file,
	})
	switch {
	case errors.Is(err, services.ErrQuotaExceeded):
		utils.InsufficientStorageResponse(c, "Free storage limit reached")
		return
	case errors.Is(err, services.ErrLedgerUpdateFailed):
		// The upload stands; the counter is stale until reconciliation.
		utils.CreatedResponse(c, "File uploaded", rec)
		return
	case err != nil:
		utils.InternalServerErrorResponse(c, "Upload failed", nil)
		return
	}

	utils.CreatedResponse(c, "File uploaded", rec)
}

func (fc *FileController) ListFiles(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	files, err := fc.fileService.ListOwn(c.Request.Context(), sess)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to list files", nil)
		return
	}
	if files == nil {
		files = []models.File{}
	}

	utils.SuccessResponse(c, "Files retrieved", files)
}

func (fc *FileController) GetFile(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	rec, err := fc.fileService.Get(c.Request.Context(), sess, c.Param("id"))
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, "File not found")
		return
	case errors.Is(err, services.ErrUnauthorized):
		utils.ForbiddenResponse(c, "Not your file")
		return
	case err != nil:
		utils.InternalServerErrorResponse(c, "Failed to get file", nil)
		return
	}

	utils.SuccessResponse(c, "File retrieved", rec)
}

func (fc *FileController) DownloadFile(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	url, err := fc.fileService.DownloadURL(c.Request.Context(), sess, c.Param("id"))
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, "File not found")
		return
	case errors.Is(err, services.ErrUnauthorized):
		utils.ForbiddenResponse(c, "Not your file")
		return
	case err != nil:
		utils.InternalServerErrorResponse(c, "Failed to generate download URL", nil)
		return
	}

	utils.SuccessResponse(c, "Download URL generated", gin.H{"url": url})
}

func (fc *FileController) DeleteFile(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	err := fc.fileService.Delete(c.Request.Context(), sess, c.Param("id"))
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, "File not found")
		return
	case errors.Is(err, services.ErrUnauthorized):
		utils.ForbiddenResponse(c, "Not your file")
		return
	case errors.Is(err, services.ErrLedgerUpdateFailed):
		// The file is gone; the counter is repaired asynchronously.
		utils.SuccessResponse(c, "File deleted", nil)
		return
	case err != nil:
		utils.InternalServerErrorResponse(c, "Delete failed", nil)
		return
	}

	utils.SuccessResponse(c, "File deleted", nil)
}

// WatchFiles streams the caller's file list as server-sent events, one
// full snapshot per event.
func (fc *FileController) WatchFiles(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return
	}

	snapshots, err := fc.watchService.WatchOwnFiles(c.Request.Context(), sess)
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
		c.SSEvent("files", snapshot)
		return true
	})
}
