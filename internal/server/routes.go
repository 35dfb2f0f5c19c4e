package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/huddle/internal/handlers"
	"github.com/nfrund/huddle/internal/middleware"
	"github.com/nfrund/huddle/web"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	cfg := s.deps.Config

	homeHandler := handlers.NewHomeHandler(s.deps.Policy, cfg.RequireAuth, cfg.MaxUploadSize)
	authHandler := handlers.NewAuthHandler(s.deps.Accounts)
	fileHandler := handlers.NewFileHandler(s.deps.Attachments)
	moderationHandler := handlers.NewModerationHandler(s.deps.Coordinator)

	var uploadGuard []echo.MiddlewareFunc
	if cfg.RequireAuth {
		uploadGuard = append(uploadGuard, middleware.RequireIdentity)
	}

	s.E.GET("/", homeHandler.HomeGet)
	s.E.StaticFS("/static", echo.MustSubFS(web.FS, "static"))

	s.E.POST("/register", authHandler.RegisterPost)
	s.E.POST("/login", authHandler.LoginPost)
	s.E.POST("/logout", authHandler.LogoutPost)
	s.E.GET("/session", authHandler.SessionGet)

	s.E.POST("/upload", fileHandler.UploadPost, uploadGuard...)
	s.E.GET("/uploads/:name", fileHandler.UploadGet)

	s.E.POST("/edit", moderationHandler.EditPost, middleware.RequireIdentity)
	s.E.POST("/delete", moderationHandler.DeletePost, middleware.RequireIdentity)

	s.E.GET("/ws", s.deps.Bridge.Handler())

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
}
