package handlers

import (
	"github.com/labstack/echo/v4"
)

// Response is the envelope of every JSON endpoint.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
}

// SessionResponse describes the caller's session.
type SessionResponse struct {
	LoggedIn bool   `json:"loggedIn"`
	Username string `json:"username,omitempty"`
}

// UploadResponse carries the reference of a stored image.
type UploadResponse struct {
	Success bool   `json:"success"`
	File    string `json:"file"`
}

func failure(c echo.Context, status int, message string) error {
	return c.JSON(status, Response{Success: false, Message: message})
}
