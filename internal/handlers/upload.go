package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/abstrio/internal/apperror"
	"github.com/thereayou/abstrio/internal/handlers/dto"
	"github.com/thereayou/abstrio/internal/services"
	"github.com/thereayou/abstrio/internal/storage"
)

// MaxImageSize is the largest profile image accepted by Upload.
const MaxImageSize = 5 << 20

type UploadHandler struct {
	images services.ImageStore
}

func NewUploadHandler(images services.ImageStore) *UploadHandler {
	return &UploadHandler{images: images}
}

// Upload сохраняет картинку профиля и возвращает её публичный URL
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.images == nil {
		respondError(c, apperror.Internal("image storage is not configured", nil))
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		respondError(c, apperror.Validation("image file is required"))
		return
	}
	if file.Size > MaxImageSize {
		respondError(c, apperror.Validation("image is too large"))
		return
	}
	contentType, ok := storage.ImageContentType(file.Filename)
	if !ok {
		respondError(c, apperror.Validation("only jpg, jpeg and png images are allowed"))
		return
	}

	f, err := file.Open()
	if err != nil {
		respondError(c, apperror.Validation("could not read image"))
		return
	}
	defer f.Close()

	url, err := h.images.Upload(c.Request.Context(), file.Filename, contentType, f, file.Size)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.UploadResponse{ImageURL: url})
}
