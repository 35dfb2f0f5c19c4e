package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/middleware"
	"github.com/nfrund/huddle/internal/storage"
)

// multipartOverhead is allowed on top of the image size for form framing.
const multipartOverhead = 1 << 20

// AttachmentService stores uploaded images and serves them back.
type AttachmentService interface {
	domain.AttachmentStore
	Open(ctx context.Context, name string) (storage.File, storage.Info, string, error)
	MaxSize() int64
}

// FileHandler handles image uploads and downloads.
type FileHandler struct {
	attachments AttachmentService
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(attachments AttachmentService) *FileHandler {
	return &FileHandler{attachments: attachments}
}

// UploadPost stores the multipart field "image" and returns its reference.
func (h *FileHandler) UploadPost(c echo.Context) error {
	ctx := c.Request().Context()
	logger := middleware.FromContext(ctx)

	if max := h.attachments.MaxSize(); max > 0 {
		c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, max+multipartOverhead)
	}

	var req UploadRequest
	if err := c.Bind(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return failure(c, http.StatusRequestEntityTooLarge, "Image too large.")
		}
		return failure(c, http.StatusBadRequest, "No image uploaded.")
	}
	if err := c.Validate(&req); err != nil {
		return failure(c, http.StatusBadRequest, "No image uploaded.")
	}

	src, err := req.Image.Open()
	if err != nil {
		return failure(c, http.StatusInternalServerError, "Failed to open uploaded file.")
	}
	defer src.Close()

	ref, err := h.attachments.Store(ctx, src, req.Image.Header.Get(echo.HeaderContentType), req.Image.Size, req.Image.Filename)
	switch {
	case errors.Is(err, domain.ErrAttachmentTooLarge):
		return failure(c, http.StatusRequestEntityTooLarge, "Image too large.")
	case errors.Is(err, domain.ErrAttachmentType):
		return failure(c, http.StatusUnsupportedMediaType, "Unsupported image type.")
	case err != nil:
		logger.Error("Failed to store upload", "error", err)
		return failure(c, http.StatusInternalServerError, "Failed to save file.")
	}

	return c.JSON(http.StatusOK, UploadResponse{Success: true, File: ref})
}

// UploadGet serves a stored image by name.
func (h *FileHandler) UploadGet(c echo.Context) error {
	f, info, contentType, err := h.attachments.Open(c.Request().Context(), c.Param("name"))
	if errors.Is(err, domain.ErrNotFound) {
		return echo.ErrNotFound
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to open file").SetInternal(err)
	}
	defer f.Close()

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, contentType)
	header.Set(echo.HeaderXContentTypeOptions, "nosniff")
	header.Set("Cache-Control", "public, max-age=86400, immutable")
	http.ServeContent(c.Response(), c.Request(), c.Param("name"), info.ModTime, f)
	return nil
}
