// Package attachments accepts uploaded images and hands back the reference
// that chat messages carry in their attachment field.
package attachments

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/storage"
	"github.com/samber/lo"
)

// URLPrefix is prepended to stored names to form the public reference.
const URLPrefix = "/uploads/"

// DefaultAllowedTypes are the image types accepted when none are configured.
var DefaultAllowedTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// sniffLen is how much of the body mimetype inspects.
const sniffLen = 3072

// Service validates uploads and writes them to a Store.
type Service struct {
	store   storage.Store
	maxSize int64
	allowed map[string]struct{}
	logger  *slog.Logger
}

// NewService creates an attachment service. maxSize is in bytes.
func NewService(store storage.Store, maxSize int64, allowedTypes []string, logger *slog.Logger) *Service {
	if len(allowedTypes) == 0 {
		allowedTypes = DefaultAllowedTypes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		maxSize: maxSize,
		allowed: lo.SliceToMap(allowedTypes, func(t string) (string, struct{}) {
			return strings.ToLower(strings.TrimSpace(t)), struct{}{}
		}),
		logger: logger.With("component", "attachments"),
	}
}

// MaxSize returns the upload limit in bytes.
func (s *Service) MaxSize() int64 { return s.maxSize }

// Store checks the declared size and type, sniffs the content, writes the
// body under a fresh name and returns its public reference.
func (s *Service) Store(ctx context.Context, body io.Reader, declaredType string, declaredSize int64, filename string) (string, error) {
	if s.maxSize > 0 && declaredSize > s.maxSize {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrAttachmentTooLarge, declaredSize, s.maxSize)
	}
	declared := normalizeType(declaredType)
	if !s.isAllowed(declared) {
		return "", fmt.Errorf("%w: declared %q", domain.ErrAttachmentType, declaredType)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	detected := mimetype.Detect(head)
	if !s.isAllowed(normalizeType(detected.String())) {
		return "", fmt.Errorf("%w: content is %s", domain.ErrAttachmentType, detected.String())
	}

	name := uuid.NewString() + detected.Extension()
	content := io.MultiReader(bytes.NewReader(head), body)
	if s.maxSize > 0 {
		// Guard against a body larger than its declared size.
		content = io.LimitReader(content, s.maxSize+1)
	}

	written, err := s.store.Save(ctx, name, content)
	if err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	if s.maxSize > 0 && written > s.maxSize {
		_ = s.store.Delete(ctx, name)
		return "", fmt.Errorf("%w: body exceeds %d bytes", domain.ErrAttachmentTooLarge, s.maxSize)
	}

	s.logger.Info("Stored attachment", "name", name, "type", detected.String(), "size", written, "original", path.Base(filename))
	return URLPrefix + name, nil
}

// Open returns a stored attachment by the name in its reference.
func (s *Service) Open(ctx context.Context, name string) (storage.File, storage.Info, string, error) {
	if name == "" || name != path.Base(name) || strings.HasPrefix(name, ".") {
		return nil, storage.Info{}, "", domain.ErrNotFound
	}
	f, info, err := s.store.Open(ctx, name)
	if err != nil {
		return nil, storage.Info{}, "", err
	}
	contentType := mimeForExt(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return f, info, contentType, nil
}

func (s *Service) isAllowed(mimeType string) bool {
	_, ok := s.allowed[mimeType]
	return ok
}

func normalizeType(t string) string {
	t, _, _ = strings.Cut(t, ";")
	return strings.ToLower(strings.TrimSpace(t))
}

func mimeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return ""
}
