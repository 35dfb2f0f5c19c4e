package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/middleware"
)

// Moderator edits and deletes messages on behalf of an identity.
type Moderator interface {
	Edit(ctx context.Context, identity string, index int, newText string) (domain.Message, error)
	Delete(ctx context.Context, identity string, index int) (domain.Message, error)
}

// ModerationHandler exposes message moderation over HTTP for the session's
// identity. Results are broadcast to live connections by the Moderator.
type ModerationHandler struct {
	moderator Moderator
}

// NewModerationHandler creates a new ModerationHandler.
func NewModerationHandler(moderator Moderator) *ModerationHandler {
	return &ModerationHandler{moderator: moderator}
}

// EditPost handles POST /edit {index, newText}.
func (h *ModerationHandler) EditPost(c echo.Context) error {
	var req EditRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request.")
	}
	if err := c.Validate(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request.")
	}

	_, err := h.moderator.Edit(c.Request().Context(), middleware.CurrentIdentity(c), *req.Index, req.NewText)
	if err != nil {
		return moderationFailure(c, err)
	}
	return c.JSON(http.StatusOK, Response{Success: true})
}

// DeletePost handles POST /delete {index}.
func (h *ModerationHandler) DeletePost(c echo.Context) error {
	var req DeleteRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request.")
	}
	if err := c.Validate(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request.")
	}

	_, err := h.moderator.Delete(c.Request().Context(), middleware.CurrentIdentity(c), *req.Index)
	if err != nil {
		return moderationFailure(c, err)
	}
	return c.JSON(http.StatusOK, Response{Success: true})
}

func moderationFailure(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return failure(c, http.StatusForbidden, "Not allowed.")
	case errors.Is(err, domain.ErrIndexOutOfRange):
		return failure(c, http.StatusNotFound, "No such message.")
	case errors.Is(err, domain.ErrEmptyMessage):
		return failure(c, http.StatusBadRequest, "Message cannot be empty.")
	default:
		middleware.FromContext(c.Request().Context()).Error("Moderation failed", "error", err)
		return failure(c, http.StatusInternalServerError, "Moderation failed.")
	}
}
