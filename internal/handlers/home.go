package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/huddle/internal/authz"
	"github.com/nfrund/huddle/internal/middleware"
	"github.com/nfrund/huddle/internal/view"
)

// HomeHandler renders the chat page.
type HomeHandler struct {
	policy      authz.Policy
	requireAuth bool
	maxUpload   int64
}

// NewHomeHandler creates a new HomeHandler.
func NewHomeHandler(policy authz.Policy, requireAuth bool, maxUpload int64) *HomeHandler {
	return &HomeHandler{policy: policy, requireAuth: requireAuth, maxUpload: maxUpload}
}

// HomeGet handles the GET request for the home page.
func (h *HomeHandler) HomeGet(c echo.Context) error {
	identity := middleware.CurrentIdentity(c)
	page := view.ChatPage(view.PageData{
		Identity:    identity,
		CanModerate: identity != "" && h.policy.CanModerate(identity),
		RequireAuth: h.requireAuth,
		MaxUpload:   h.maxUpload,
		Flashes:     view.GetFlashData(c),
	})

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return page.Render(c.Response())
}
