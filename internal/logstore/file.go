package logstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/storage"
)

// FileLog stores the whole log as one JSON array file.
type FileLog struct {
	store  storage.Store
	name   string
	logger *slog.Logger
}

// NewFileLog creates a file backend writing name inside store.
func NewFileLog(store storage.Store, name string, logger *slog.Logger) *FileLog {
	if name == "" {
		name = "messages.json"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileLog{store: store, name: name, logger: logger}
}

// Persist replaces the file atomically with the given snapshot.
func (f *FileLog) Persist(ctx context.Context, messages []domain.Message) error {
	if messages == nil {
		messages = []domain.Message{}
	}
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("encode log: %w", err)
	}
	n, err := f.store.Replace(ctx, f.name, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write %s: %w", f.name, err)
	}
	f.logger.Debug("Persisted message log", "file", f.name, "messages", len(messages), "bytes", n)
	return nil
}

// Load reads the snapshot. A missing file is an empty log.
func (f *FileLog) Load(ctx context.Context) ([]domain.Message, error) {
	file, _, err := f.store.Open(ctx, f.name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.name, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var messages []domain.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.name, err)
	}
	return clone(messages), nil
}

func (f *FileLog) Close() error { return nil }
