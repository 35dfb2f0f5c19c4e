package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nfrund/huddle/internal/domain"
)

// drainPoll is how often Shutdown checks for remaining connections.
const drainPoll = 20 * time.Millisecond

// Shutdown stops accepting requests, closes every live connection, waits
// for them to go away and then flushes the message log and releases the
// backend and the bus.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.E.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop http: %w", err))
	}

	coord := s.deps.Coordinator
	coord.Shutdown(domain.CloseReasonShutdown)
	if err := waitFor(ctx, func() bool { return coord.Sessions() == 0 }); err != nil {
		s.deps.Logger.Warn("Connections still open at shutdown", "count", coord.Sessions())
	}

	if err := s.deps.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	s.deps.Logger.Info("Server stopped")
	return errors.Join(errs...)
}

func waitFor(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
