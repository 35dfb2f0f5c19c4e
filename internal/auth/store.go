// Package auth is the in-process identity provider: it registers accounts
// and verifies passwords hashed with bcrypt.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nfrund/huddle/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// Store keeps accounts in memory, keyed by normalised identity.
type Store struct {
	mu     sync.RWMutex
	hashes map[string][]byte
	cost   int
	logger *slog.Logger
}

// NewStore creates an empty account store. cost is the bcrypt work factor;
// out-of-range values fall back to bcrypt.DefaultCost.
func NewStore(cost int, logger *slog.Logger) *Store {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		hashes: make(map[string][]byte),
		cost:   cost,
		logger: logger.With("component", "auth"),
	}
}

// Register creates an account and returns its identity.
func (s *Store) Register(ctx context.Context, creds domain.Credentials) (string, error) {
	identity, err := domain.NormalizeIdentity(creds.Username)
	if err != nil {
		return "", err
	}
	if creds.Password == "" {
		return "", domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password too long", domain.ErrInvalidCredentials)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.hashes[identity]; exists {
		return "", domain.ErrUserAlreadyExists
	}
	s.hashes[identity] = hash

	s.logger.Info("Registered account", "identity", identity)
	return identity, nil
}

// Authenticate verifies the password and returns the account's identity.
func (s *Store) Authenticate(ctx context.Context, creds domain.Credentials) (string, error) {
	identity, err := domain.NormalizeIdentity(creds.Username)
	if err != nil {
		return "", domain.ErrUserNotFound
	}

	s.mu.RLock()
	hash, ok := s.hashes[identity]
	s.mu.RUnlock()
	if !ok {
		return "", domain.ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(creds.Password)); err != nil {
		return "", domain.ErrInvalidCredentials
	}
	return identity, nil
}
