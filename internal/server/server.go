// Package server assembles the HTTP surface: middleware, routes, the
// WebSocket endpoint and graceful shutdown.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/nfrund/huddle/internal/app"
	"github.com/nfrund/huddle/internal/handlers"
	"github.com/nfrund/huddle/internal/middleware"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E    *echo.Echo
	deps *app.Dependencies
}

// New creates a new Server instance with its middleware installed.
func New(deps *app.Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()

	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(requestLogger(deps.Logger))

	e.Use(session.Middleware(newSessionStore(deps.Config.SessionSecret, deps.Logger)))
	e.Use(middleware.Identity)
	e.Use(middleware.Logger)

	return &Server{E: e, deps: deps}
}

// newSessionStore returns a cookie store. Without a configured secret a
// random one is generated, so sessions do not survive a restart.
func newSessionStore(secret string, logger *slog.Logger) *sessions.CookieStore {
	key := []byte(secret)
	if secret == "" {
		logger.Warn("HUDDLE_SESSION_SECRET is not set; using a random session key")
		key = securecookie.GenerateRandomKey(32)
	}
	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// requestLogger logs every completed request through slog.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				logger.Warn("Request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Debug("Request", attrs...)
			return nil
		},
	})
}
