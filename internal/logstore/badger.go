package logstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/nfrund/huddle/internal/domain"
)

var snapshotKey = []byte("huddle/messages")

// BadgerLog stores the log as a single JSON value in a badger database.
type BadgerLog struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadgerLog opens (or creates) a badger database in dir.
func OpenBadgerLog(dir string, logger *slog.Logger) (*BadgerLog, error) {
	if dir == "" {
		return nil, errors.New("badger directory is required")
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return NewBadgerLog(db, logger), nil
}

// NewBadgerLog wraps an already opened database. Close closes it.
func NewBadgerLog(db *badger.DB, logger *slog.Logger) *BadgerLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerLog{db: db, logger: logger}
}

func (b *BadgerLog) Persist(ctx context.Context, messages []domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode log: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey, data)
	})
	if err != nil {
		return fmt.Errorf("badger write: %w", err)
	}
	b.logger.Debug("Persisted message log", "messages", len(messages), "bytes", len(data))
	return nil
}

func (b *BadgerLog) Load(ctx context.Context) ([]domain.Message, error) {
	var messages []domain.Message
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &messages)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("badger read: %w", err)
	}
	return clone(messages), nil
}

func (b *BadgerLog) Close() error {
	return b.db.Close()
}
