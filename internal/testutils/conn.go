package testutils

import (
	"encoding/json"
	"sync"
)

// Frame is a decoded outbound event captured by FakeConn.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// FakeConn implements domain.Connection and records everything sent to it.
type FakeConn struct {
	id string

	mu          sync.Mutex
	frames      [][]byte
	closed      bool
	closeReason string
	full        bool
}

// NewFakeConn returns an open connection with the given ID.
func NewFakeConn(id string) *FakeConn {
	return &FakeConn{id: id}
}

func (c *FakeConn) ID() string { return c.id }

// Send records payload unless the connection is closed or marked full.
func (c *FakeConn) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.frames = append(c.frames, payload)
	return true
}

func (c *FakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeReason = reason
}

// SetFull makes every following Send fail as if the buffer were full.
func (c *FakeConn) SetFull(full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.full = full
}

// Closed reports whether Close was called and with what reason.
func (c *FakeConn) Closed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeReason
}

// Frames returns every decoded frame in the order it was sent.
func (c *FakeConn) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f Frame
		if err := json.Unmarshal(raw, &f); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// Events returns the frames whose event name matches.
func (c *FakeConn) Events(event string) []Frame {
	var out []Frame
	for _, f := range c.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// Reset forgets every recorded frame.
func (c *FakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}
