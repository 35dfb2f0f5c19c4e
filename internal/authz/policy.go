// Package authz decides which identities may moderate the message log.
package authz

import (
	"github.com/nfrund/huddle/internal/domain"
	"github.com/samber/lo"
)

// Policy is the moderation predicate.
type Policy interface {
	CanModerate(identity string) bool
}

// Static allows a fixed set of identities.
type Static struct {
	allowed map[string]struct{}
}

// NewStatic builds a policy from raw identities. Entries that are not valid
// identities are ignored.
func NewStatic(identities ...string) *Static {
	return &Static{allowed: normalizeSet(identities)}
}

func (s *Static) CanModerate(identity string) bool {
	_, ok := s.allowed[identity]
	return ok
}

// Any allows an identity when at least one of the policies does.
type Any []Policy

func (a Any) CanModerate(identity string) bool {
	return lo.SomeBy(a, func(p Policy) bool {
		return p != nil && p.CanModerate(identity)
	})
}

func normalizeSet(identities []string) map[string]struct{} {
	valid := lo.FilterMap(identities, func(raw string, _ int) (string, bool) {
		id, err := domain.NormalizeIdentity(raw)
		return id, err == nil
	})
	return lo.SliceToMap(valid, func(id string) (string, struct{}) {
		return id, struct{}{}
	})
}
