package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"speaker-split/internal/api/errors"
	"speaker-split/internal/api/middleware"
	"speaker-split/internal/api/v1/services"
)

// maxUploadSize bounds multipart audio uploads (500 MB).
const maxUploadSize = 500 << 20

// UploadHandler accepts audio uploads into object storage
type UploadHandler struct {
	storage services.StorageService
	logger  *slog.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(storage services.StorageService, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{storage: storage, logger: logger}
}

// Upload handles POST /api/v1/upload
// Stores the multipart "file" field and returns the reference the processing
// backend accepts as audioPath.
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		middleware.HandleError(c, errors.NewBadRequestError("Missing or unreadable file field"))
		return
	}
	defer file.Close()

	result, err := h.storage.UploadFile(c.Request.Context(), file, header, UserID(c))
	if err != nil {
		h.logger.Error("upload failed", "filename", header.Filename, "error", err)
		middleware.HandleError(c, errors.NewInternalError("Upload failed"))
		return
	}

	c.JSON(http.StatusCreated, result)
}
