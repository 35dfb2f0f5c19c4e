// Package protocol defines the JSON event frames exchanged over the real-time
// connection.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nfrund/huddle/internal/domain"
)

// Inbound event names.
const (
	EventJoin          = "join"
	EventLeave         = "leave"
	EventChatMessage   = "chatMessage"
	EventEditMessage   = "editMessage"
	EventDeleteMessage = "deleteMessage"
)

// Outbound event names. deleteMessage is shared with the inbound set.
const (
	EventLoadMessages  = "loadMessages"
	EventMessage       = "message"
	EventUpdateMessage = "updateMessage"
	EventOnlineUsers   = "onlineUsers"
)

// Envelope is one frame on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatMessage is the payload of an inbound chatMessage event.
type ChatMessage struct {
	Text       string
	Attachment string
	Target     string
}

// UnmarshalJSON accepts both the canonical field names and the "image"/"to"
// names sent by older clients.
func (m *ChatMessage) UnmarshalJSON(b []byte) error {
	var raw struct {
		Text       *string `json:"text"`
		Attachment *string `json:"attachment"`
		Image      *string `json:"image"`
		Target     *string `json:"target"`
		To         *string `json:"to"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = ChatMessage{
		Text:       deref(raw.Text),
		Attachment: firstSet(raw.Attachment, raw.Image),
		Target:     firstSet(raw.Target, raw.To),
	}
	return nil
}

// EditMessage is the payload of an inbound editMessage event.
type EditMessage struct {
	Index   *int   `json:"index"`
	NewText string `json:"newText"`
}

// DeleteMessage is the payload of an inbound deleteMessage event.
type DeleteMessage struct {
	Index *int `json:"index"`
}

// MessageEvent is the payload of an outbound message event.
type MessageEvent struct {
	Message domain.Message `json:"message"`
	Index   int            `json:"index"`
}

// UpdateMessageEvent is the payload of an outbound updateMessage event.
type UpdateMessageEvent struct {
	Index   int    `json:"index"`
	NewText string `json:"newText"`
}

// DeleteMessageEvent is the payload of an outbound deleteMessage event.
type DeleteMessageEvent struct {
	Index int `json:"index"`
}

// Encode builds a frame for event with data marshalled as its payload.
func Encode(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode parses a raw frame into its envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", domain.ErrMalformedEvent)
	}
	return env, nil
}

// DecodeData unmarshals the envelope's payload into T.
func DecodeData[T any](env Envelope) (T, error) {
	var v T
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return v, fmt.Errorf("%w: %s has no data", domain.ErrMalformedEvent, env.Event)
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("%w: %s: %v", domain.ErrMalformedEvent, env.Event, err)
	}
	return v, nil
}

// DecodeJoin extracts the identity from a join payload. Both a bare string
// and an object with a username field are accepted.
func DecodeJoin(env Envelope) (string, error) {
	if s, err := DecodeData[string](env); err == nil {
		return s, nil
	}
	obj, err := DecodeData[struct {
		Username string `json:"username"`
	}](env)
	if err != nil {
		return "", err
	}
	return obj.Username, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstSet(vals ...*string) string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}
