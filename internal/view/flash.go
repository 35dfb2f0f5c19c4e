package view

import (
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

const (
	flashSessionName = "huddle-flash"
	flashKeySuccess  = "success"
	flashKeyError    = "error"
)

// Flashes are one-shot notices shown on the next page render.
type Flashes struct {
	Success []string
	Error   []string
}

// setFlash sets a flash message in the session.
func setFlash(c echo.Context, key, message string) {
	sess, err := session.Get(flashSessionName, c)
	if err != nil {
		return
	}
	sess.AddFlash(message, key)
	_ = sess.Save(c.Request(), c.Response())
}

// SetFlashSuccess sets a success flash message.
func SetFlashSuccess(c echo.Context, message string) {
	setFlash(c, flashKeySuccess, message)
}

// SetFlashError sets an error flash message.
func SetFlashError(c echo.Context, message string) {
	setFlash(c, flashKeyError, message)
}

// GetFlashData retrieves and clears the pending flash messages.
func GetFlashData(c echo.Context) Flashes {
	sess, err := session.Get(flashSessionName, c)
	if err != nil {
		return Flashes{}
	}

	// Flashes() clears what it returns, so the session is saved afterwards.
	success := sess.Flashes(flashKeySuccess)
	failure := sess.Flashes(flashKeyError)
	if len(success) == 0 && len(failure) == 0 {
		return Flashes{}
	}
	_ = sess.Save(c.Request(), c.Response())

	return Flashes{
		Success: toStrings(success),
		Error:   toStrings(failure),
	}
}

func toStrings(values []any) []string {
	return lo.FilterMap(values, func(v any, _ int) (string, bool) {
		s, ok := v.(string)
		return s, ok
	})
}
