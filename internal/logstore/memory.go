package logstore

import (
	"context"
	"sync"

	"github.com/nfrund/huddle/internal/domain"
)

// MemoryLog keeps the persisted snapshot in process memory.
type MemoryLog struct {
	mu       sync.Mutex
	messages []domain.Message
	writes   int
}

// NewMemoryLog creates an empty in-memory durable log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Persist(ctx context.Context, messages []domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = clone(messages)
	m.writes++
	return nil
}

func (m *MemoryLog) Load(ctx context.Context) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.messages), nil
}

// Writes reports how many snapshots have been persisted.
func (m *MemoryLog) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MemoryLog) Close() error { return nil }
