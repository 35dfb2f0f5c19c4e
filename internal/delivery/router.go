// Package delivery decides who receives a chat event and pushes it to them.
package delivery

import (
	"log/slog"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/protocol"
)

// Directory is the read side of the presence registry.
type Directory interface {
	Resolve(identity string) (domain.Connection, bool)
	Connections() []domain.Connection
}

// Router fans events out to connections. Every send is non-blocking; a
// connection that cannot take the frame is skipped.
type Router struct {
	dir    Directory
	logger *slog.Logger
}

// NewRouter creates a router over the given directory.
func NewRouter(dir Directory, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		dir:    dir,
		logger: logger.With("component", "delivery"),
	}
}

// Deliver sends a new message to its recipients and returns how many
// connections accepted it.
//
// A broadcast goes to every present connection including the author. A
// direct message goes to the target and the author; when the target is
// offline only the author gets it.
func (r *Router) Deliver(msg domain.Message) int {
	frame, err := protocol.Encode(protocol.EventMessage, protocol.MessageEvent{
		Message: msg,
		Index:   msg.Index,
	})
	if err != nil {
		r.logger.Error("Failed to encode message", "error", err, "index", msg.Index)
		return 0
	}

	if !msg.IsDirect() {
		return r.fanOut(r.dir.Connections(), protocol.EventMessage, frame)
	}

	recipients := make([]domain.Connection, 0, 2)
	if target, ok := r.dir.Resolve(*msg.Target); ok {
		recipients = append(recipients, target)
	} else {
		r.logger.Debug("Direct message target offline", "author", msg.Author, "target", *msg.Target)
	}
	if author, ok := r.dir.Resolve(msg.Author); ok {
		if len(recipients) == 0 || recipients[0].ID() != author.ID() {
			recipients = append(recipients, author)
		}
	}
	return r.fanOut(recipients, protocol.EventMessage, frame)
}

// Broadcast sends an event to every present connection.
func (r *Router) Broadcast(event string, data any) int {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		r.logger.Error("Failed to encode broadcast", "event", event, "error", err)
		return 0
	}
	return r.fanOut(r.dir.Connections(), event, frame)
}

// Send delivers an event to a single connection.
func (r *Router) Send(conn domain.Connection, event string, data any) bool {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		r.logger.Error("Failed to encode event", "event", event, "error", err)
		return false
	}
	return r.fanOut([]domain.Connection{conn}, event, frame) == 1
}

func (r *Router) fanOut(conns []domain.Connection, event string, frame []byte) int {
	delivered := 0
	for _, conn := range conns {
		if conn.Send(frame) {
			delivered++
			continue
		}
		r.logger.Warn("Connection send buffer full or closed, dropping event",
			"conn", conn.ID(), "event", event)
	}
	return delivered
}
