package domain

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// MaxTextLength is the number of characters a message text is truncated to.
const MaxTextLength = 200

// validatorInstance is a package-level validator instance.
// Using a single instance is more efficient as it caches struct information.
var validatorInstance = validator.New()

// Message is one entry of the message log.
type Message struct {
	// ID is a stable, monotonically increasing identifier assigned at append
	// time. Unlike Index it never changes when earlier messages are removed.
	ID         uint64    `json:"id"`
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	Attachment *string   `json:"attachment"`
	Target     *string   `json:"target"`
	Timestamp  time.Time `json:"timestamp"`
	// Index is the message's position in the log when it was read.
	Index int `json:"index"`
}

// IsDirect reports whether the message is addressed to a single identity.
func (m Message) IsDirect() bool {
	return m.Target != nil
}

// Draft is a candidate message before the log assigns its position.
type Draft struct {
	Author     string  `validate:"required,max=30"`
	Text       string  `validate:"max=200"`
	Attachment *string `validate:"omitempty,max=2048"`
	Target     *string `validate:"omitempty,min=1,max=30"`
}

// NewDraft cleans the raw fields of an inbound chat message. Empty attachment
// and target strings become nil.
func NewDraft(author, text, attachment, target string) Draft {
	return Draft{
		Author:     author,
		Text:       CleanText(text),
		Attachment: optional(strings.TrimSpace(attachment)),
		Target:     optional(strings.TrimSpace(norm.NFC.String(target))),
	}
}

// Validate checks field limits and the text/attachment invariant.
func (d Draft) Validate() error {
	if d.Text == "" && d.Attachment == nil {
		return ErrEmptyMessage
	}
	return validatorInstance.Struct(d)
}

// CleanText trims surrounding whitespace and truncates to MaxTextLength characters.
func CleanText(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	r := []rune(s)
	if len(r) > MaxTextLength {
		return strings.TrimSpace(string(r[:MaxTextLength]))
	}
	return s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
