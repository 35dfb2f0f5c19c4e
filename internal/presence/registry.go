// Package presence tracks which identity is bound to which live connection.
package presence

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/samber/lo"
)

// Registry is the bidirectional identity <-> connection map. Each identity
// has at most one connection and each connection at most one identity.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]domain.Connection
	byConn     map[string]string // connection ID -> identity
	logger     *slog.Logger
}

// Option is a function that configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byIdentity: make(map[string]domain.Connection),
		byConn:     make(map[string]string),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("service", "presence")
	return r
}

// Join binds identity to conn. If the identity was already bound to a
// different connection, that connection is returned so the caller can
// terminate it. If conn was bound to a different identity, that binding is
// dropped first.
func (r *Registry) Join(identity string, conn domain.Connection) (domain.Connection, error) {
	if identity == "" {
		return nil, domain.ErrInvalidIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byConn[conn.ID()]; ok && old != identity {
		delete(r.byIdentity, old)
		r.logger.Debug("Connection switched identity", "from", old, "to", identity, "conn", conn.ID())
	}

	var prior domain.Connection
	if existing, ok := r.byIdentity[identity]; ok && existing.ID() != conn.ID() {
		delete(r.byConn, existing.ID())
		prior = existing
	}

	r.byIdentity[identity] = conn
	r.byConn[conn.ID()] = identity

	if prior != nil {
		r.logger.Info("Identity joined from a new connection",
			"identity", identity, "conn", conn.ID(), "replaced", prior.ID())
	} else {
		r.logger.Info("Identity joined", "identity", identity, "conn", conn.ID())
	}
	return prior, nil
}

// Leave removes identity only if it is currently bound to conn.
func (r *Registry) Leave(identity string, conn domain.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byIdentity[identity]
	if !ok || current.ID() != conn.ID() {
		return false
	}
	delete(r.byIdentity, identity)
	delete(r.byConn, conn.ID())
	r.logger.Info("Identity left", "identity", identity, "conn", conn.ID())
	return true
}

// Disconnect removes whatever identity is bound to conn.
func (r *Registry) Disconnect(conn domain.Connection) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byConn[conn.ID()]
	if !ok {
		return "", false
	}
	delete(r.byConn, conn.ID())
	if current, ok := r.byIdentity[identity]; ok && current.ID() == conn.ID() {
		delete(r.byIdentity, identity)
	}
	r.logger.Info("Connection disconnected", "identity", identity, "conn", conn.ID())
	return identity, true
}

// Resolve returns the connection bound to identity.
func (r *Registry) Resolve(identity string) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byIdentity[identity]
	return conn, ok
}

// IdentityOf returns the identity bound to conn.
func (r *Registry) IdentityOf(conn domain.Connection) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.byConn[conn.ID()]
	return identity, ok
}

// Identities returns the present identities in ascending order.
func (r *Registry) Identities() []string {
	r.mu.RLock()
	ids := lo.Keys(r.byIdentity)
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Connections returns the present connections ordered by identity.
func (r *Registry) Connections() []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := lo.Keys(r.byIdentity)
	sort.Strings(ids)
	return lo.Map(ids, func(id string, _ int) domain.Connection {
		return r.byIdentity[id]
	})
}

// Count returns the number of present identities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}
