package logstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nfrund/huddle/internal/database"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/surrealdb/surrealdb.go"
)

const (
	replaceLogQuery = `BEGIN TRANSACTION;
DELETE message;
INSERT INTO message $rows;
COMMIT TRANSACTION;`
	clearLogQuery = `DELETE message;`
	loadLogQuery  = `SELECT seq, author, text, attachment, target, timestamp, position FROM message ORDER BY position ASC`
)

// messageRow is the stored shape of a message. seq avoids clashing with
// SurrealDB's own id field.
type messageRow struct {
	Seq        uint64    `json:"seq"`
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	Attachment *string   `json:"attachment"`
	Target     *string   `json:"target"`
	Timestamp  time.Time `json:"timestamp"`
	Position   int       `json:"position"`
}

func toRow(m domain.Message, position int) messageRow {
	return messageRow{
		Seq:        m.ID,
		Author:     m.Author,
		Text:       m.Text,
		Attachment: m.Attachment,
		Target:     m.Target,
		Timestamp:  m.Timestamp,
		Position:   position,
	}
}

func (r messageRow) toMessage() domain.Message {
	return domain.Message{
		ID:         r.Seq,
		Author:     r.Author,
		Text:       r.Text,
		Attachment: r.Attachment,
		Target:     r.Target,
		Timestamp:  r.Timestamp,
		Index:      r.Position,
	}
}

// SurrealLog stores each message as a row of the message table.
type SurrealLog struct {
	conn   *database.Connection
	logger *slog.Logger
}

// NewSurrealLog creates a SurrealDB backend over a connected connection.
func NewSurrealLog(conn *database.Connection, logger *slog.Logger) *SurrealLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &SurrealLog{conn: conn, logger: logger}
}

// Persist replaces the table contents in one transaction.
func (s *SurrealLog) Persist(ctx context.Context, messages []domain.Message) error {
	rows := make([]messageRow, len(messages))
	for i, m := range messages {
		rows[i] = toRow(m, i)
	}

	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		if len(rows) == 0 {
			return database.Execute(ctx, db, clearLogQuery, nil)
		}
		return database.Execute(ctx, db, replaceLogQuery, map[string]any{"rows": rows})
	})
	if err != nil {
		return fmt.Errorf("surreal write: %w", err)
	}
	s.logger.Debug("Persisted message log", "messages", len(rows))
	return nil
}

func (s *SurrealLog) Load(ctx context.Context) ([]domain.Message, error) {
	var rows []messageRow
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		rows, err = database.Query[messageRow](ctx, db, loadLogQuery, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("surreal read: %w", err)
	}

	messages := make([]domain.Message, len(rows))
	for i, r := range rows {
		messages[i] = r.toMessage()
	}
	return clone(messages), nil
}

func (s *SurrealLog) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Close(ctx)
}
