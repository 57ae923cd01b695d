// Package snippet defines the snippet entries that drive text expansion and
// the change notifications storage backends emit when the collection moves.
package snippet

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// CollectionKey is the storage key under which the snippet collection lives.
const CollectionKey = "snippets"

// Storage scopes. A refresher only reacts to changes from the scope it watches.
const (
	ScopeSync  = "sync"
	ScopeLocal = "local"
)

var (
	// ErrEmptyCode is returned when an entry has no trigger code.
	ErrEmptyCode = errors.New("snippet code is empty")

	// ErrCodeWhitespace is returned when a code contains whitespace. Codes
	// are terminated by a space, so a code with whitespace can never fire.
	ErrCodeWhitespace = errors.New("snippet code contains whitespace")
)

// Entry is a single trigger code and the text it expands to.
type Entry struct {
	ID        string    `json:"id" toml:"id" yaml:"id"`
	Code      string    `json:"code" toml:"code" yaml:"code"`
	Text      string    `json:"text" toml:"text" yaml:"text"`
	CreatedAt time.Time `json:"created_at,omitempty" toml:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty" toml:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// New creates an entry with a fresh ID. Code and text are trimmed.
func New(code, text string) Entry {
	now := time.Now().UTC()
	return Entry{
		ID:        NewID(),
		Code:      strings.TrimSpace(code),
		Text:      strings.TrimSpace(text),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewID returns a fresh opaque entry ID.
func NewID() string {
	return uuid.NewString()
}

// Validate checks that the entry can be matched as a trigger.
func (e Entry) Validate() error {
	if e.Code == "" {
		return ErrEmptyCode
	}
	if strings.IndexFunc(e.Code, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q", ErrCodeWhitespace, e.Code)
	}
	return nil
}

// Trigger returns the literal string that fires this entry.
func (e Entry) Trigger() string {
	return e.Code + " "
}

// Change describes a modification of stored keys within a scope.
type Change struct {
	Scope string
	Keys  []string
}

// Touches reports whether the change affects the given key.
func (c Change) Touches(key string) bool {
	for _, k := range c.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Filter returns the entries whose code or text contains term, ignoring case.
// An empty term matches everything.
func Filter(entries []Entry, term string) []Entry {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return append([]Entry(nil), entries...)
	}

	var out []Entry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Code), term) ||
			strings.Contains(strings.ToLower(e.Text), term) {
			out = append(out, e)
		}
	}
	return out
}

// Preview shortens text to at most n runes, marking truncation with "...".
func Preview(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}

// Upsert replaces the entry with the same ID or appends it.
func Upsert(entries []Entry, e Entry) ([]Entry, bool) {
	out := append([]Entry(nil), entries...)
	for i := range out {
		if out[i].ID == e.ID {
			if e.CreatedAt.IsZero() {
				e.CreatedAt = out[i].CreatedAt
			}
			out[i] = e
			return out, true
		}
	}
	return append(out, e), false
}

// Remove drops the entry with the given ID.
func Remove(entries []Entry, id string) ([]Entry, bool) {
	out := make([]Entry, 0, len(entries))
	removed := false
	for _, e := range entries {
		if e.ID == id {
			removed = true
			continue
		}
		out = append(out, e)
	}
	return out, removed
}
