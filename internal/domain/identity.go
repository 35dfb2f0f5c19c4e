package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxIdentityLength is the longest identity, in characters, a connection may join as.
const MaxIdentityLength = 30

// NormalizeIdentity trims and NFC-normalises a raw identity so that visually
// identical names map to the same presence entry.
func NormalizeIdentity(raw string) (string, error) {
	id := strings.TrimSpace(norm.NFC.String(raw))
	if id == "" {
		return "", ErrInvalidIdentity
	}
	if n := utf8.RuneCountInString(id); n > MaxIdentityLength {
		return "", fmt.Errorf("%w: got %d characters", ErrInvalidIdentity, n)
	}
	return id, nil
}
