// Package messagelog holds the ordered, index-addressed chat history.
//
// Positions (indices) are what the wire protocol speaks, but they shift when
// an earlier message is removed. Every message therefore also carries a stable
// sequence ID assigned at append time; index-based operations resolve the
// index to that ID under the lock and then act on the ID.
package messagelog

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/huddle/internal/domain"
)

// Sink receives a full copy of the log after every mutation.
// Implementations must not block.
type Sink interface {
	Offer(snapshot []domain.Message)
}

// Log is the in-memory message log. It is safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []domain.Message
	nextID  uint64

	sink   Sink
	now    func() time.Time
	logger *slog.Logger
}

// Option is a function that configures a Log.
type Option func(*Log)

// WithSink sets the durability sink that receives snapshots.
func WithSink(s Sink) Option {
	return func(l *Log) {
		l.sink = s
	}
}

// WithClock overrides the clock used to timestamp messages.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// New creates an empty log.
func New(opts ...Option) *Log {
	l := &Log{
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "message_log")
	return l
}

// Restore replaces the log contents with previously persisted messages.
// It does not trigger a durable write.
func (l *Log) Restore(messages []domain.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make([]domain.Message, len(messages))
	copy(l.entries, messages)
	if !idsIncreasing(l.entries) {
		l.logger.Warn("Restored messages have missing or unordered IDs; renumbering")
		for i := range l.entries {
			l.entries[i].ID = uint64(i + 1)
		}
	}
	l.nextID = 1
	for i := range l.entries {
		l.entries[i].Index = i
		if l.entries[i].ID >= l.nextID {
			l.nextID = l.entries[i].ID + 1
		}
	}
	l.logger.Info("Restored message log", "messages", len(l.entries))
}

// idsIncreasing reports whether every ID is set and strictly greater than
// the one before it, which positionLocked relies on.
func idsIncreasing(messages []domain.Message) bool {
	for i, m := range messages {
		if m.ID == 0 || (i > 0 && m.ID <= messages[i-1].ID) {
			return false
		}
	}
	return true
}

// Append validates the draft, assigns it the next index and ID, and appends it.
// The returned message carries its assigned index.
func (l *Log) Append(d domain.Draft) (domain.Message, error) {
	if err := d.Validate(); err != nil {
		return domain.Message{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := domain.Message{
		ID:         l.nextID,
		Author:     d.Author,
		Text:       d.Text,
		Attachment: d.Attachment,
		Target:     d.Target,
		Timestamp:  l.now(),
		Index:      len(l.entries),
	}
	l.nextID++
	l.entries = append(l.entries, msg)
	l.offerLocked()

	return msg, nil
}

// Update replaces the text of the message at index. It reports false when
// the index is out of range or the edit would leave the message empty.
func (l *Log) Update(index int, newText string) (domain.Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.idAtLocked(index)
	if !ok {
		return domain.Message{}, false
	}
	return l.updateLocked(id, newText)
}

// UpdateByID is Update addressed by stable ID.
func (l *Log) UpdateByID(id uint64, newText string) (domain.Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.updateLocked(id, newText)
}

func (l *Log) updateLocked(id uint64, newText string) (domain.Message, bool) {
	pos, ok := l.positionLocked(id)
	if !ok {
		return domain.Message{}, false
	}
	text := domain.CleanText(newText)
	if text == "" && l.entries[pos].Attachment == nil {
		return domain.Message{}, false
	}
	l.entries[pos].Text = text
	l.offerLocked()

	msg := l.entries[pos]
	msg.Index = pos
	return msg, true
}

// Remove deletes the message at index; later messages shift down by one.
func (l *Log) Remove(index int) (domain.Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.idAtLocked(index)
	if !ok {
		return domain.Message{}, false
	}
	return l.removeLocked(id)
}

// RemoveByID is Remove addressed by stable ID.
func (l *Log) RemoveByID(id uint64) (domain.Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.removeLocked(id)
}

func (l *Log) removeLocked(id uint64) (domain.Message, bool) {
	pos, ok := l.positionLocked(id)
	if !ok {
		return domain.Message{}, false
	}
	removed := l.entries[pos]
	removed.Index = pos

	l.entries = append(l.entries[:pos], l.entries[pos+1:]...)
	for i := pos; i < len(l.entries); i++ {
		l.entries[i].Index = i
	}
	l.offerLocked()
	return removed, true
}

// Snapshot returns a copy of the log in order. Each message's Index is its
// current position.
func (l *Log) Snapshot() []domain.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.copyLocked()
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// IDAt resolves a wire index to the stable ID of the message currently there.
func (l *Log) IDAt(index int) (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.idAtLocked(index)
}

// IndexOf returns the current position of the message with the given ID.
func (l *Log) IndexOf(id uint64) (int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.positionLocked(id)
}

func (l *Log) idAtLocked(index int) (uint64, bool) {
	if index < 0 || index >= len(l.entries) {
		return 0, false
	}
	return l.entries[index].ID, true
}

// positionLocked finds an ID by binary search; IDs are strictly increasing
// along the log because appends always take the next ID.
func (l *Log) positionLocked(id uint64) (int, bool) {
	lo, hi := 0, len(l.entries)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if l.entries[mid].ID < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(l.entries) && l.entries[lo].ID == id {
		return lo, true
	}
	return 0, false
}

func (l *Log) copyLocked() []domain.Message {
	out := make([]domain.Message, len(l.entries))
	copy(out, l.entries)
	return out
}

// offerLocked hands a snapshot to the sink while the lock is held, so sinks
// observe snapshots in mutation order.
func (l *Log) offerLocked() {
	if l.sink == nil {
		return
	}
	l.sink.Offer(l.copyLocked())
}
