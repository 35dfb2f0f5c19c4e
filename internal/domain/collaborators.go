package domain

import (
	"context"
	"io"
)

// Credentials are what a user presents to the identity provider.
type Credentials struct {
	Username string `json:"username" validate:"required,max=30"`
	Password string `json:"password" validate:"required"`
}

// IdentityProvider verifies credentials and yields the identity they belong to.
type IdentityProvider interface {
	Register(ctx context.Context, creds Credentials) (string, error)
	Authenticate(ctx context.Context, creds Credentials) (string, error)
}

// AttachmentStore accepts an upload and returns an opaque reference that is
// embedded verbatim in a message's attachment field.
type AttachmentStore interface {
	Store(ctx context.Context, body io.Reader, declaredType string, declaredSize int64, filename string) (string, error)
}

// DurableLog persists the full message log so it survives restarts.
// Persist always receives the complete log and overwrites what was stored.
type DurableLog interface {
	Persist(ctx context.Context, messages []Message) error
	Load(ctx context.Context) ([]Message, error)
	Close() error
}
