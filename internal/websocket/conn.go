// Package websocket is the real-time transport: it upgrades HTTP requests,
// pumps frames between the socket and a chat session, and implements
// domain.Connection for the coordinator.
package websocket

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/nfrund/huddle/internal/domain"
)

const writeWait = 10 * time.Second

// Conn is one accepted WebSocket connection.
type Conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	// done is closed by Close; the write pump then sends the close frame.
	done        chan struct{}
	closeOnce   sync.Once
	closeReason string
}

func newConn(ws *websocket.Conn, sendBuffer int, logger *slog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With("conn", id),
		done:   make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues payload for the write pump. It reports false if the connection
// is closing or its buffer is full.
func (c *Conn) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close signals the write pump to send a close frame and stop.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		close(c.done)
	})
}

func closeStatus(reason string) websocket.StatusCode {
	switch reason {
	case domain.CloseReasonShutdown:
		return websocket.StatusGoingAway
	case "":
		return websocket.StatusNormalClosure
	default:
		return websocket.StatusPolicyViolation
	}
}

// writePump pumps messages from the send buffer to the socket.
func (c *Conn) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			// Flush what was queued before the close was requested.
			c.drain(ctx)
			if err := c.ws.Close(closeStatus(c.closeReason), c.closeReason); err != nil {
				c.logger.Debug("WebSocket close handshake failed", "error", err)
			}
			return
		case message := <-c.send:
			if err := c.write(ctx, message); err != nil {
				c.logger.Error("WebSocket write error", "error", err)
				c.ws.CloseNow()
				return
			}
		}
	}
}

func (c *Conn) drain(ctx context.Context) {
	for {
		select {
		case message := <-c.send:
			if err := c.write(ctx, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(ctx context.Context, message []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, message)
}

// Handler processes one inbound frame.
type Handler interface {
	Handle(ctx context.Context, raw []byte) error
}

// readPump feeds inbound frames to h until the socket fails or closes.
func (c *Conn) readPump(ctx context.Context, h Handler) {
	for {
		_, message, err := c.ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				c.logger.Info("WebSocket closed normally by client")
			case status != -1:
				c.logger.Info("WebSocket closed", "status", status)
			case err == io.EOF || ctx.Err() != nil:
			default:
				c.logger.Debug("WebSocket read ended", "error", err)
			}
			return
		}

		if err := h.Handle(ctx, message); err != nil {
			// Errors are never reported to the client.
			c.logger.Debug("Rejected event", "error", err)
		}
	}
}
