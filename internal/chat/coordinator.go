// Package chat composes the message log, the presence registry and the
// delivery router into the per-connection chat protocol.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nfrund/huddle/internal/authz"
	"github.com/nfrund/huddle/internal/delivery"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/messagelog"
	"github.com/nfrund/huddle/internal/presence"
	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/pubsub"
)

// Coordinator owns the shared chat state and hands out one Session per
// live connection.
type Coordinator struct {
	log       *messagelog.Log
	registry  *presence.Registry
	router    *delivery.Router
	policy    authz.Policy
	publisher pubsub.Publisher
	logger    *slog.Logger

	// fanout orders log mutations with the frames announcing them: appends
	// hold it shared, moderation and joins hold it exclusively.
	fanout sync.RWMutex

	mu       sync.Mutex
	sessions map[string]*Session // connection ID -> session
}

// Option is a function that configures a Coordinator.
type Option func(*Coordinator)

// WithPublisher publishes activity events to p.
func WithPublisher(p pubsub.Publisher) Option {
	return func(c *Coordinator) {
		c.publisher = p
	}
}

// WithLogger sets the coordinator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator wires the coordinator. A nil policy allows nobody to moderate.
func NewCoordinator(log *messagelog.Log, registry *presence.Registry, router *delivery.Router, policy authz.Policy, opts ...Option) *Coordinator {
	if policy == nil {
		policy = authz.NewStatic()
	}
	c := &Coordinator{
		log:      log,
		registry: registry,
		router:   router,
		policy:   policy,
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("service", "chat")
	return c
}

// Connect registers a new connection in the Anonymous state. authIdentity is
// the identity the request was authenticated as, or empty if it was not.
func (c *Coordinator) Connect(conn domain.Connection, authIdentity string) *Session {
	s := &Session{
		coord:        c,
		conn:         conn,
		authIdentity: authIdentity,
		state:        StateAnonymous,
		logger:       c.logger.With("conn", conn.ID()),
	}

	c.mu.Lock()
	c.sessions[conn.ID()] = s
	c.mu.Unlock()

	s.logger.Debug("Connection opened", "authenticated", authIdentity != "")
	return s
}

func (c *Coordinator) forget(conn domain.Connection) {
	c.mu.Lock()
	delete(c.sessions, conn.ID())
	c.mu.Unlock()
}

func (c *Coordinator) session(conn domain.Connection) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[conn.ID()]
	return s, ok
}

// Sessions returns the number of live connections, joined or not.
func (c *Coordinator) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// OnlineUsers returns the present identities in order.
func (c *Coordinator) OnlineUsers() []string {
	return c.registry.Identities()
}

// History returns the full message log.
func (c *Coordinator) History() []domain.Message {
	return c.log.Snapshot()
}

// Edit replaces the text of the message at index on behalf of identity.
// It is the moderation path shared by the WebSocket and HTTP surfaces.
func (c *Coordinator) Edit(ctx context.Context, identity string, index int, newText string) (domain.Message, error) {
	if !c.policy.CanModerate(identity) {
		return domain.Message{}, domain.ErrUnauthorized
	}

	c.fanout.Lock()
	msg, ok := c.log.Update(index, newText)
	if !ok {
		outOfRange := index < 0 || index >= c.log.Len()
		c.fanout.Unlock()
		if outOfRange {
			return domain.Message{}, fmt.Errorf("edit %d: %w", index, domain.ErrIndexOutOfRange)
		}
		return domain.Message{}, fmt.Errorf("edit %d: %w", index, domain.ErrEmptyMessage)
	}
	c.router.Broadcast(protocol.EventUpdateMessage, protocol.UpdateMessageEvent{
		Index:   msg.Index,
		NewText: msg.Text,
	})
	c.fanout.Unlock()

	c.publish(ctx, TopicMessageEdited, identity, MessageActivity{
		ID: msg.ID, Index: msg.Index, Author: msg.Author, Direct: msg.IsDirect(), Moderator: identity,
	})
	return msg, nil
}

// Delete removes the message at index on behalf of identity.
func (c *Coordinator) Delete(ctx context.Context, identity string, index int) (domain.Message, error) {
	if !c.policy.CanModerate(identity) {
		return domain.Message{}, domain.ErrUnauthorized
	}

	c.fanout.Lock()
	msg, ok := c.log.Remove(index)
	if ok {
		c.router.Broadcast(protocol.EventDeleteMessage, protocol.DeleteMessageEvent{Index: msg.Index})
	}
	c.fanout.Unlock()
	if !ok {
		return domain.Message{}, fmt.Errorf("delete %d: %w", index, domain.ErrIndexOutOfRange)
	}

	c.publish(ctx, TopicMessageDeleted, identity, MessageActivity{
		ID: msg.ID, Index: msg.Index, Author: msg.Author, Direct: msg.IsDirect(), Moderator: identity,
	})
	return msg, nil
}

// Shutdown asks every live connection to close.
func (c *Coordinator) Shutdown(reason string) {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		s.conn.Close(reason)
	}
	c.logger.Info("Closed live connections", "count", len(sessions))
}

func (c *Coordinator) broadcastOnline() {
	c.router.Broadcast(protocol.EventOnlineUsers, c.registry.Identities())
}

func publishTo[T any](ctx context.Context, c *Coordinator, event pubsub.Event[T], userID string, payload T) {
	if c.publisher == nil {
		return
	}
	if err := pubsub.Publish(ctx, c.publisher, event, userID, payload); err != nil {
		c.logger.Warn("Failed to publish activity event", "topic", event.Name(), "error", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, event pubsub.Event[MessageActivity], userID string, payload MessageActivity) {
	publishTo(ctx, c, event, userID, payload)
}

func (c *Coordinator) publishPresence(ctx context.Context, event pubsub.Event[IdentityActivity], payload IdentityActivity) {
	publishTo(ctx, c, event, payload.Identity, payload)
}
