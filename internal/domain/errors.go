package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common business logic failures.
var (
	// Validation failures. The operation is rejected with no state change.
	ErrInvalidIdentity = errors.New("identity must be 1-30 characters")
	ErrEmptyMessage    = errors.New("message needs text or an attachment")
	ErrIndexOutOfRange = errors.New("message index out of range")
	ErrMalformedEvent  = errors.New("malformed event")

	// Session state failures.
	ErrNotJoined       = errors.New("connection has not joined")
	ErrAlreadyJoined   = errors.New("connection already joined")
	ErrSessionReplaced = errors.New("identity was taken over by a newer connection")
	ErrTerminated      = errors.New("connection terminated")

	// ErrUnauthorized is returned when an identity attempts a privileged action.
	// Callers must not reveal the reason to the client.
	ErrUnauthorized = errors.New("not authorized")

	// ErrPersistence wraps durable log backend failures.
	ErrPersistence = errors.New("durable log write failed")

	// Identity provider failures.
	ErrUserAlreadyExists  = errors.New("username taken")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials provided")

	// Attachment store failures.
	ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")
	ErrAttachmentType     = errors.New("attachment type not allowed")
	ErrNotFound           = errors.New("requested resource not found")
)
