package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/protocol"
)

// State is the lifecycle state of one connection.
type State int

const (
	StateAnonymous State = iota
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is the protocol state machine for a single connection.
type Session struct {
	coord        *Coordinator
	conn         domain.Connection
	authIdentity string
	logger       *slog.Logger

	mu       sync.Mutex
	state    State
	identity string

	// replaced is set when a newer connection joined as the same identity.
	// It is never cleared: the connection is already being closed.
	replaced atomic.Bool
}

// Conn returns the session's connection.
func (s *Session) Conn() domain.Connection { return s.conn }

// State returns the current lifecycle state. A replaced session reports
// Anonymous.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateActive && s.replaced.Load() {
		return StateAnonymous
	}
	return s.state
}

// Identity returns the bound identity while the session is active.
func (s *Session) Identity() (string, bool) {
	id, err := s.activeIdentity()
	return id, err == nil
}

func (s *Session) activeIdentity() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == StateTerminated:
		return "", domain.ErrTerminated
	case s.state == StateAnonymous:
		return "", domain.ErrNotJoined
	case s.replaced.Load():
		return "", domain.ErrSessionReplaced
	}
	if bound, ok := s.coord.registry.IdentityOf(s.conn); !ok || bound != s.identity {
		return "", domain.ErrSessionReplaced
	}
	return s.identity, nil
}

// Handle decodes one inbound frame and dispatches it.
func (s *Session) Handle(ctx context.Context, raw []byte) error {
	env, err := protocol.Decode(raw)
	if err != nil {
		return err
	}

	switch env.Event {
	case protocol.EventJoin:
		identity, err := protocol.DecodeJoin(env)
		if err != nil {
			return err
		}
		return s.Join(ctx, identity)

	case protocol.EventLeave:
		return s.Leave(ctx)

	case protocol.EventChatMessage:
		m, err := protocol.DecodeData[protocol.ChatMessage](env)
		if err != nil {
			return err
		}
		_, err = s.SendMessage(ctx, m)
		return err

	case protocol.EventEditMessage:
		e, err := protocol.DecodeData[protocol.EditMessage](env)
		if err != nil {
			return err
		}
		if e.Index == nil {
			return fmt.Errorf("%w: editMessage without index", domain.ErrMalformedEvent)
		}
		return s.EditMessage(ctx, *e.Index, e.NewText)

	case protocol.EventDeleteMessage:
		d, err := protocol.DecodeData[protocol.DeleteMessage](env)
		if err != nil {
			return err
		}
		if d.Index == nil {
			return fmt.Errorf("%w: deleteMessage without index", domain.ErrMalformedEvent)
		}
		return s.DeleteMessage(ctx, *d.Index)
	}

	return fmt.Errorf("%w: unknown event %q", domain.ErrMalformedEvent, env.Event)
}

// Join binds the connection to identity, terminating any older connection
// that held it, sends the history to this connection and broadcasts the new
// presence list.
func (s *Session) Join(ctx context.Context, raw string) error {
	identity, err := domain.NormalizeIdentity(raw)
	if err != nil {
		return err
	}
	if s.authIdentity != "" && identity != s.authIdentity {
		s.logger.Warn("Join identity does not match authenticated identity", "identity", identity)
		return domain.ErrUnauthorized
	}

	// Holding fanout exclusively keeps appends and moderation out while the
	// binding is made and the history is queued, so the new connection sees
	// each message exactly once and after loadMessages.
	s.coord.fanout.Lock()
	s.mu.Lock()
	switch {
	case s.state == StateTerminated:
		s.mu.Unlock()
		s.coord.fanout.Unlock()
		return domain.ErrTerminated
	case s.replaced.Load():
		s.mu.Unlock()
		s.coord.fanout.Unlock()
		return domain.ErrSessionReplaced
	case s.state == StateActive:
		s.mu.Unlock()
		s.coord.fanout.Unlock()
		return domain.ErrAlreadyJoined
	}

	prior, err := s.coord.registry.Join(identity, s.conn)
	if err != nil {
		s.mu.Unlock()
		s.coord.fanout.Unlock()
		return err
	}
	s.state = StateActive
	s.identity = identity
	s.mu.Unlock()

	if prior != nil {
		if old, ok := s.coord.session(prior); ok {
			old.replaced.Store(true)
		}
	}
	s.coord.router.Send(s.conn, protocol.EventLoadMessages, s.coord.log.Snapshot())
	s.coord.fanout.Unlock()

	if prior != nil {
		prior.Close(domain.CloseReasonReplaced)
		s.coord.publishPresence(ctx, TopicIdentityLeft, IdentityActivity{
			Identity: identity, ConnectionID: prior.ID(), Reason: ReasonReplaced,
		})
	}

	s.coord.broadcastOnline()
	s.coord.publishPresence(ctx, TopicIdentityJoined, IdentityActivity{
		Identity: identity, ConnectionID: s.conn.ID(),
	})
	return nil
}

// Leave unbinds the identity and returns the session to Anonymous.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.state == StateTerminated:
		s.mu.Unlock()
		return domain.ErrTerminated
	case s.state != StateActive:
		s.mu.Unlock()
		return domain.ErrNotJoined
	}
	identity := s.identity
	s.state = StateAnonymous
	s.identity = ""
	wasReplaced := s.replaced.Load()
	s.mu.Unlock()

	if wasReplaced || !s.coord.registry.Leave(identity, s.conn) {
		return domain.ErrSessionReplaced
	}

	s.coord.broadcastOnline()
	s.coord.publishPresence(ctx, TopicIdentityLeft, IdentityActivity{
		Identity: identity, ConnectionID: s.conn.ID(), Reason: ReasonLeave,
	})
	return nil
}

// SendMessage appends a message authored by the bound identity and delivers
// it. Messages with neither text nor attachment are rejected.
func (s *Session) SendMessage(ctx context.Context, m protocol.ChatMessage) (domain.Message, error) {
	msg, err := s.appendAndDeliver(m)
	if err != nil {
		return domain.Message{}, err
	}
	s.coord.publish(ctx, TopicMessageAppended, msg.Author, MessageActivity{
		ID: msg.ID, Index: msg.Index, Author: msg.Author, Direct: msg.IsDirect(),
	})
	return msg, nil
}

func (s *Session) appendAndDeliver(m protocol.ChatMessage) (domain.Message, error) {
	s.coord.fanout.RLock()
	defer s.coord.fanout.RUnlock()

	identity, err := s.activeIdentity()
	if err != nil {
		return domain.Message{}, err
	}
	msg, err := s.coord.log.Append(domain.NewDraft(identity, m.Text, m.Attachment, m.Target))
	if err != nil {
		return domain.Message{}, err
	}
	s.coord.router.Deliver(msg)
	return msg, nil
}

// EditMessage is the moderated text replacement.
func (s *Session) EditMessage(ctx context.Context, index int, newText string) error {
	identity, err := s.activeIdentity()
	if err != nil {
		return err
	}
	_, err = s.coord.Edit(ctx, identity, index, newText)
	return err
}

// DeleteMessage is the moderated removal.
func (s *Session) DeleteMessage(ctx context.Context, index int) error {
	identity, err := s.activeIdentity()
	if err != nil {
		return err
	}
	_, err = s.coord.Delete(ctx, identity, index)
	return err
}

// Disconnect handles the transport going away. It is safe to call more than once.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminated
	s.mu.Unlock()

	s.coord.forget(s.conn)

	identity, removed := s.coord.registry.Disconnect(s.conn)
	if !removed {
		s.logger.Debug("Connection closed")
		return
	}

	s.coord.broadcastOnline()
	s.coord.publishPresence(ctx, TopicIdentityLeft, IdentityActivity{
		Identity: identity, ConnectionID: s.conn.ID(), Reason: ReasonDisconnect,
	})
}
