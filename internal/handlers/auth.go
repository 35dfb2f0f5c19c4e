package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/middleware"
	"github.com/nfrund/huddle/internal/view"
)

// Messages shown to clients by the account endpoints.
const (
	msgInvalidCredentials = "Invalid username or password."
	msgUsernameTaken      = "Username taken."
	msgUserNotFound       = "User not found."
	msgWrongPassword      = "Wrong password."
	msgLoggedOut          = "You have been logged out."
)

// AuthHandler handles account registration and the login session.
type AuthHandler struct {
	accounts domain.IdentityProvider
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(accounts domain.IdentityProvider) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// RegisterPost creates an account. It does not log the caller in.
func (h *AuthHandler) RegisterPost(c echo.Context) error {
	var req CredentialsRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, msgInvalidCredentials)
	}
	if err := c.Validate(&req); err != nil {
		return failure(c, http.StatusBadRequest, msgInvalidCredentials)
	}

	_, err := h.accounts.Register(c.Request().Context(), domain.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, Response{Success: true})
	case errors.Is(err, domain.ErrUserAlreadyExists):
		return failure(c, http.StatusConflict, msgUsernameTaken)
	case errors.Is(err, domain.ErrInvalidIdentity), errors.Is(err, domain.ErrInvalidCredentials):
		return failure(c, http.StatusBadRequest, msgInvalidCredentials)
	default:
		middleware.FromContext(c.Request().Context()).Error("Error creating account", "error", err)
		return failure(c, http.StatusInternalServerError, "Could not create your account.")
	}
}

// LoginPost verifies the credentials and stores the identity in the session.
func (h *AuthHandler) LoginPost(c echo.Context) error {
	var req CredentialsRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, msgInvalidCredentials)
	}
	if err := c.Validate(&req); err != nil {
		return failure(c, http.StatusBadRequest, msgInvalidCredentials)
	}

	logger := middleware.FromContext(c.Request().Context())
	identity, err := h.accounts.Authenticate(c.Request().Context(), domain.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		logger.Warn("Failed login attempt", "username", req.Username, "error", err)
		return failure(c, http.StatusUnauthorized, msgUserNotFound)
	case errors.Is(err, domain.ErrInvalidCredentials):
		logger.Warn("Failed login attempt", "username", req.Username, "error", err)
		return failure(c, http.StatusUnauthorized, msgWrongPassword)
	case err != nil:
		logger.Error("Error authenticating", "error", err)
		return failure(c, http.StatusInternalServerError, "Could not log you in.")
	}

	if err := middleware.Login(c, identity); err != nil {
		logger.Error("Failed to save session", "error", err)
		return failure(c, http.StatusInternalServerError, "Could not log you in.")
	}
	return c.JSON(http.StatusOK, LoginResponse{Success: true, Username: identity})
}

// LogoutPost clears the session.
func (h *AuthHandler) LogoutPost(c echo.Context) error {
	if err := middleware.Logout(c); err != nil {
		middleware.FromContext(c.Request().Context()).Error("Failed to clear session", "error", err)
		return failure(c, http.StatusInternalServerError, "Could not log you out.")
	}
	view.SetFlashSuccess(c, msgLoggedOut)
	return c.JSON(http.StatusOK, Response{Success: true})
}

// SessionGet reports whether the caller is logged in and as whom.
func (h *AuthHandler) SessionGet(c echo.Context) error {
	identity := middleware.CurrentIdentity(c)
	return c.JSON(http.StatusOK, SessionResponse{
		LoggedIn: identity != "",
		Username: identity,
	})
}
