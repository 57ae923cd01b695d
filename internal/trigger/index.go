// Package trigger holds the in-memory index from trigger string to
// expansion text and the policy that keeps it in step with storage.
package trigger

import (
	"sort"
	"strings"
	"sync/atomic"

	"snippetd/internal/snippet"
)

// Delimiter terminates every trigger. It is the only supported delimiter.
const Delimiter = " "

// Map maps a trigger string (code + Delimiter) to its expansion text.
// A Map obtained from Index.Snapshot must not be modified.
type Map map[string]string

// Match finds the trigger that text ends with. When several triggers are
// suffixes of text the longest one wins, so "@em " beats "em ".
func (m Map) Match(text string) (trigger, expansion string, ok bool) {
	for t, exp := range m {
		if len(t) <= len(trigger) || !strings.HasSuffix(text, t) {
			continue
		}
		trigger, expansion, ok = t, exp, true
	}
	return trigger, expansion, ok
}

// Triggers returns the trigger strings in sorted order.
func (m Map) Triggers() []string {
	out := make([]string, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Index is the process-wide trigger mapping. Rebuild constructs a complete
// new map before swapping it in, so readers observe either the old or the
// new mapping and never a partial one.
type Index struct {
	current atomic.Pointer[Map]
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	idx := &Index{}
	empty := Map{}
	idx.current.Store(&empty)
	return idx
}

// Rebuild replaces the mapping with one built from entries in order. Later
// entries overwrite earlier ones with the same code.
func (idx *Index) Rebuild(entries []snippet.Entry) {
	m := make(Map, len(entries))
	for _, e := range entries {
		if e.Code == "" {
			continue
		}
		m[e.Code+Delimiter] = e.Text
	}
	idx.current.Store(&m)
}

// Snapshot returns the current mapping.
func (idx *Index) Snapshot() Map {
	if m := idx.current.Load(); m != nil {
		return *m
	}
	return Map{}
}

// Len returns the number of triggers in the current mapping.
func (idx *Index) Len() int {
	return len(idx.Snapshot())
}
