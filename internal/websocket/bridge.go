package websocket

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/huddle/internal/chat"
	"github.com/nfrund/huddle/internal/middleware"
)

// Config tunes accepted connections.
type Config struct {
	SendBuffer   int
	MaxFrameSize int64
	RequireAuth  bool
	// OriginPatterns are extra hosts allowed to open cross-origin connections.
	// Empty means same-origin only unless InsecureSkipVerify is set.
	OriginPatterns     []string
	InsecureSkipVerify bool
}

// Bridge connects WebSocket clients to the chat coordinator.
type Bridge struct {
	coord  *chat.Coordinator
	cfg    Config
	logger *slog.Logger
}

// NewBridge creates a bridge with sensible defaults for zero config values.
func NewBridge(coord *chat.Coordinator, cfg Config, logger *slog.Logger) *Bridge {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = 64 << 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		coord:  coord,
		cfg:    cfg,
		logger: logger.With("component", "websocket"),
	}
}

// Handler upgrades the request and serves the connection until it closes.
func (b *Bridge) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		identity := middleware.CurrentIdentity(c)
		if b.cfg.RequireAuth && identity == "" {
			return c.String(http.StatusUnauthorized, "User not authenticated")
		}

		ws, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			OriginPatterns:     b.cfg.OriginPatterns,
			InsecureSkipVerify: b.cfg.InsecureSkipVerify,
		})
		if err != nil {
			b.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
			return nil
		}
		ws.SetReadLimit(b.cfg.MaxFrameSize)

		conn := newConn(ws, b.cfg.SendBuffer, b.logger)
		session := b.coord.Connect(conn, identity)

		ctx, cancel := context.WithCancel(context.Background())
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			conn.writePump(ctx)
		}()

		conn.readPump(ctx, session)

		session.Disconnect(ctx)
		conn.Close("")
		<-writerDone
		cancel()
		ws.CloseNow()
		return nil
	}
}
