package server

import (
	"context"
	"errors"
	"net/http"
)

// Start runs the HTTP server until ctx is canceled or the listener fails,
// then shuts everything down within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	addr := s.deps.Config.Addr
	errCh := make(chan error, 1)
	go func() {
		if err := s.E.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.deps.Logger.Info("Server listening", "addr", addr)

	var runErr error
	select {
	case <-ctx.Done():
		s.deps.Logger.Info("Shutdown signal received")
	case runErr = <-errCh:
		s.deps.Logger.Error("Server stopped", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.deps.Config.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, s.Shutdown(shutdownCtx))
}
