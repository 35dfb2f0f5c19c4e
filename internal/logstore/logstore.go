// Package logstore provides the durable log backends the message log is
// persisted to and restored from.
package logstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nfrund/huddle/internal/database"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/storage"
)

// Backend names accepted by Open.
const (
	BackendFile    = "file"
	BackendBadger  = "badger"
	BackendSurreal = "surreal"
	BackendMemory  = "memory"
)

// Settings selects and configures a backend.
type Settings struct {
	Backend   string
	File      string
	BadgerDir string
	Surreal   database.Settings
}

// Open creates the durable log named by s.Backend.
func Open(ctx context.Context, s Settings, logger *slog.Logger) (domain.DurableLog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "logstore", "backend", s.Backend)

	switch s.Backend {
	case BackendFile, "":
		dir, name := filepath.Split(s.File)
		if dir == "" {
			dir = "."
		}
		store, err := storage.NewDiskStore(dir)
		if err != nil {
			return nil, fmt.Errorf("open log directory: %w", err)
		}
		return NewFileLog(store, name, logger), nil
	case BackendBadger:
		return OpenBadgerLog(s.BadgerDir, logger)
	case BackendSurreal:
		conn := database.NewConnection(s.Surreal)
		if err := conn.Connect(ctx); err != nil {
			return nil, err
		}
		return NewSurrealLog(conn, logger), nil
	case BackendMemory:
		return NewMemoryLog(), nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", s.Backend)
	}
}

// clone returns a copy of messages with Index set to each position.
func clone(messages []domain.Message) []domain.Message {
	out := make([]domain.Message, len(messages))
	copy(out, messages)
	for i := range out {
		out[i].Index = i
	}
	return out
}
