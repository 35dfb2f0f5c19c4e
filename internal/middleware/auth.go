package middleware

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

const (
	// SessionName is the cookie session that carries the authenticated identity.
	SessionName = "huddle-session"
	// IdentityContextKey is where Identity stores the identity on echo.Context.
	IdentityContextKey = "identity"

	identityValueKey = "identity"
)

// Identity reads the authenticated identity from the session, if any, and
// stores it on the context. It never rejects a request.
// It must run after session.Middleware.
func Identity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if sess, err := session.Get(SessionName, c); err == nil {
			if id, ok := sess.Values[identityValueKey].(string); ok && id != "" {
				c.Set(IdentityContextKey, id)
			}
		}
		return next(c)
	}
}

// RequireIdentity rejects requests without an authenticated identity.
func RequireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if CurrentIdentity(c) == "" {
			return c.JSON(http.StatusUnauthorized, map[string]any{
				"success": false,
				"message": "Not logged in.",
			})
		}
		return next(c)
	}
}

// CurrentIdentity returns the identity set by Identity, or "".
func CurrentIdentity(c echo.Context) string {
	id, _ := c.Get(IdentityContextKey).(string)
	return id
}

// Login stores identity in the session cookie.
func Login(c echo.Context, identity string) error {
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return err
	}
	sess.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	sess.Values[identityValueKey] = identity
	c.Set(IdentityContextKey, identity)
	return sess.Save(c.Request(), c.Response())
}

// Logout expires the session cookie.
func Logout(c echo.Context) error {
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return err
	}
	delete(sess.Values, identityValueKey)
	sess.Options = &sessions.Options{Path: "/", MaxAge: -1}
	c.Set(IdentityContextKey, "")
	return sess.Save(c.Request(), c.Response())
}
