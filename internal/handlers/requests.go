package handlers

import (
	"mime/multipart"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the go-playground/validator library to implement Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// CredentialsRequest is the body of /register and /login.
type CredentialsRequest struct {
	Username string `json:"username" form:"username" validate:"required,max=120"`
	Password string `json:"password" form:"password" validate:"required,max=72"`
}

// UploadRequest defines the DTO for the image upload endpoint.
type UploadRequest struct {
	Image *multipart.FileHeader `form:"image" validate:"required"`
}

// EditRequest is the body of POST /edit.
type EditRequest struct {
	Index   *int   `json:"index" validate:"required,min=0"`
	NewText string `json:"newText"`
}

// DeleteRequest is the body of POST /delete.
type DeleteRequest struct {
	Index *int `json:"index" validate:"required,min=0"`
}
