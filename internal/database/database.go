// Package database holds the SurrealDB connection and query helpers used by
// the surreal durable log backend.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/surrealdb/surrealdb.go"
)

// ErrNotConnected is returned when an operation runs without a live connection.
var ErrNotConnected = errors.New("database not connected")

// Settings locates and authenticates against a SurrealDB instance.
type Settings struct {
	URL       string
	Namespace string
	Database  string
	User      string
	Pass      string
}

// NewDB creates and configures a new SurrealDB connection.
func NewDB(ctx context.Context, s Settings) (*surrealdb.DB, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, s.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to surrealdb at %s: %w", redactDBURL(s.URL), err)
	}

	authData := &surrealdb.Auth{
		Username: s.User,
		Password: s.Pass,
	}

	if _, err = db.SignIn(ctx, authData); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	if err = db.Use(ctx, s.Namespace, s.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/db: %w", err)
	}

	slog.Info("Successfully signed in to SurrealDB", "db_url", redactDBURL(s.URL), "namespace", s.Namespace, "database", s.Database)
	return db, nil
}

// redactDBURL returns the URL with any password replaced, for logging.
func redactDBURL(dbURL string) string {
	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}
	return parsedURL.Redacted()
}
