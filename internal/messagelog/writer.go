package messagelog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/huddle/internal/domain"
)

// DefaultPersistTimeout bounds a single durable write.
const DefaultPersistTimeout = 10 * time.Second

// Writer persists log snapshots on a single background goroutine.
//
// It holds at most one pending snapshot. Offering a new snapshot while a write
// is in flight replaces the pending one, so a writer that falls behind only
// ever writes the most recent state, and writes never overtake each other.
type Writer struct {
	backend domain.DurableLog
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending []domain.Message
	dirty   bool
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewWriter creates a writer for the given backend. Call Start to begin
// processing and Close to drain it.
func NewWriter(backend domain.DurableLog, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		backend: backend,
		logger:  logger.With("component", "durable_writer"),
		timeout: DefaultPersistTimeout,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the background goroutine.
func (w *Writer) Start() {
	go w.run()
}

// Offer hands the writer the latest full snapshot. It never blocks.
func (w *Writer) Offer(snapshot []domain.Message) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.pending = snapshot
	w.dirty = true
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.flush()
		case <-w.stop:
			// Final write of whatever arrived before Close.
			w.flush()
			return
		}
	}
}

// flush writes the pending snapshot, if any.
func (w *Writer) flush() {
	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return
	}
	snapshot := w.pending
	w.pending = nil
	w.dirty = false
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.backend.Persist(ctx, snapshot); err != nil {
		// In-memory state stays authoritative; the next mutation retries with a
		// newer snapshot.
		w.logger.Error("Failed to persist message log",
			"error", fmt.Errorf("%w: %v", domain.ErrPersistence, err),
			"messages", len(snapshot))
		return
	}
	w.logger.Debug("Persisted message log", "messages", len(snapshot))
}

// Close stops accepting snapshots, writes the last pending one and waits for
// the goroutine to exit or ctx to expire.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stop)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
