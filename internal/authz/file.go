package authz

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FilePolicy allows the identities listed in a text file, one per line.
// Blank lines and lines starting with '#' are ignored. The file is re-read
// whenever it changes on disk.
type FilePolicy struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	allowed map[string]struct{}

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFilePolicy loads path once. A missing file yields an empty policy.
func NewFilePolicy(path string, logger *slog.Logger) (*FilePolicy, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &FilePolicy{
		path:    filepath.Clean(path),
		logger:  logger.With("component", "moderators"),
		allowed: map[string]struct{}{},
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *FilePolicy) CanModerate(identity string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.allowed[identity]
	return ok
}

// Reload re-reads the file.
func (p *FilePolicy) Reload() error {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		p.swap(map[string]struct{}{})
		p.logger.Warn("Moderator file not found, no file-based moderators", "path", p.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read moderator file: %w", err)
	}

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("parse moderator file: %w", err)
	}

	set := normalizeSet(ids)
	p.swap(set)
	p.logger.Info("Loaded moderators", "path", p.path, "count", len(set))
	return nil
}

func (p *FilePolicy) swap(set map[string]struct{}) {
	p.mu.Lock()
	p.allowed = set
	p.mu.Unlock()
}

// Watch starts reloading the file on change until ctx is canceled or Close
// is called. The parent directory is watched so that editors which replace
// the file atomically are picked up.
func (p *FilePolicy) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file system watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch moderator directory: %w", err)
	}

	p.watcher = watcher
	p.done = make(chan struct{})
	go p.watchLoop(ctx)

	p.logger.Debug("Watching moderator file", "path", p.path)
	return nil
}

func (p *FilePolicy) watchLoop(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			p.watcher.Close()
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if err := p.Reload(); err != nil {
					p.logger.Error("Failed to reload moderator file", "error", err)
				}
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("File system watcher error", "error", err)
		}
	}
}

// Close stops the watcher, if running.
func (p *FilePolicy) Close() error {
	if p.watcher == nil {
		return nil
	}
	err := p.watcher.Close()
	<-p.done
	return err
}
