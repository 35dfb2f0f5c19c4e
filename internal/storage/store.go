// Package storage is the filesystem abstraction shared by uploaded
// attachments and the file-backed durable log.
package storage

import (
	"context"
	"io"
	"time"
)

// File is an opened stored object.
type File interface {
	io.ReadSeekCloser
}

// Info describes a stored object.
type Info struct {
	Size    int64
	ModTime time.Time
}

// Store defines the interface for a file storage backend.
type Store interface {
	Save(ctx context.Context, path string, reader io.Reader) (int64, error)
	Replace(ctx context.Context, path string, reader io.Reader) (int64, error)
	Open(ctx context.Context, path string) (File, Info, error)
	Delete(ctx context.Context, path string) error
}
