package ime

import (
	"fmt"
	"sync"
	"time"

	"snippetd/internal/expand"
	"snippetd/internal/logging"
	"snippetd/internal/surface"
)

// Emitter delivers edits to the focused application.
type Emitter interface {
	// DeleteSurroundingText removes nchars characters starting offset
	// characters from the caret.
	DeleteSurroundingText(offset int32, nchars uint32) error

	// CommitText inserts text at the caret.
	CommitText(text string) error
}

// Poster queues work on the event loop.
type Poster interface {
	Post(task func())
}

// Stats counts what the host has seen.
type Stats struct {
	Sessions   int
	Updates    int
	Unchanged  int
	Commits    int
	EmitErrors int
}

// Host connects input method sessions to the expansion engine. All
// session state is touched only from tasks running on the loop.
type Host struct {
	loop   Poster
	page   *surface.Page
	logger *logging.Logger

	mu    sync.Mutex
	stats Stats
}

// NewHost creates a host that hands notifications to h on loop. observe,
// if non-nil, receives each engine result.
func NewHost(loop Poster, h surface.Handler, observe func(expand.Result, time.Duration), logger *logging.Logger) *Host {
	if logger == nil {
		logger = logging.Default()
	}
	page := surface.NewPage()
	page.Attach(h, observe)
	return &Host{
		loop:   loop,
		page:   page,
		logger: logger.WithComponent("ime"),
	}
}

// NewSession creates a surface for one input context.
func (h *Host) NewSession(emitter Emitter) *Session {
	h.mu.Lock()
	h.stats.Sessions++
	h.mu.Unlock()
	return &Session{host: h, emitter: emitter}
}

// Stats returns a copy of the host counters.
func (h *Host) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Host) count(fn func(*Stats)) {
	h.mu.Lock()
	fn(&h.stats)
	h.mu.Unlock()
}

// Session is the flat text surface of one input context. Its value is the
// surrounding text up to the caret. Offsets count runes, matching the
// character offsets IBus uses.
type Session struct {
	host    *Host
	emitter Emitter

	text    []rune
	cursor  int
	focused bool
	known   bool
}

var (
	_ expand.Plain       = (*Session)(nil)
	_ expand.ValueWriter = (*Session)(nil)
)

// Update records a new surrounding text report and, when the text before
// the caret changed, posts an input notification. It may be called from
// any goroutine.
func (s *Session) Update(text string, cursor int) {
	s.host.loop.Post(func() {
		if s.apply([]rune(text), cursor) {
			s.host.count(func(st *Stats) { st.Updates++ })
			s.DispatchEvent(expand.Event{Type: expand.EventInput, Target: s})
			return
		}
		s.host.count(func(st *Stats) { st.Unchanged++ })
	})
}

// Reset forgets the surrounding text, for example after focus moves.
func (s *Session) Reset() {
	s.host.loop.Post(func() {
		s.text, s.cursor, s.known = nil, 0, false
	})
}

func (s *Session) apply(text []rune, cursor int) bool {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(text) {
		cursor = len(text)
	}
	changed := !s.known || string(text[:cursor]) != string(s.text[:s.cursor])
	s.text, s.cursor, s.known = text, cursor, true
	return changed
}

// Value returns the text before the caret.
func (s *Session) Value() string {
	return string(s.text[:s.cursor])
}

// Surrounding returns the whole surrounding text and the caret offset.
func (s *Session) Surrounding() (string, int) {
	return string(s.text), s.cursor
}

// SetValue replaces the text before the caret with v. Failures are
// counted and logged by WriteValue.
func (s *Session) SetValue(v string) {
	_ = s.WriteValue(v)
}

// WriteValue replaces the text before the caret with v. Only the part
// after the common prefix is deleted and recommitted. When the commit
// fails the deleted text is committed back, so a failed write leaves the
// application's text and the local copy as they were.
func (s *Session) WriteValue(v string) error {
	old := s.text[:s.cursor]
	next := []rune(v)

	p := 0
	for p < len(old) && p < len(next) && old[p] == next[p] {
		p++
	}

	removed := old[p:]
	if n := len(removed); n > 0 {
		if err := s.emitter.DeleteSurroundingText(int32(-n), uint32(n)); err != nil {
			return s.emitFailed("delete surrounding text", err)
		}
	}
	if tail := next[p:]; len(tail) > 0 {
		if err := s.emitter.CommitText(string(tail)); err != nil {
			s.restore(removed)
			return s.emitFailed("commit text", err)
		}
	}
	s.host.count(func(st *Stats) { st.Commits++ })

	after := s.text[s.cursor:]
	text := make([]rune, 0, len(next)+len(after))
	text = append(append(text, next...), after...)
	s.text, s.cursor = text, len(next)
	return nil
}

// restore commits removed back after a failed commit. If that fails too
// the local copy no longer matches the application and is dropped.
func (s *Session) restore(removed []rune) {
	if len(removed) == 0 {
		return
	}
	if err := s.emitter.CommitText(string(removed)); err != nil {
		s.host.logger.Error("restore after failed commit", "error", err)
		s.text, s.cursor, s.known = nil, 0, false
	}
}

func (s *Session) emitFailed(op string, err error) error {
	s.host.count(func(st *Stats) { st.EmitErrors++ })
	s.host.logger.Error("emit failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w", op, err)
}

// Focus marks the session focused.
func (s *Session) Focus() { s.focused = true }

// Focused reports whether the session has focus.
func (s *Session) Focused() bool { return s.focused }

// SetFocused updates focus from the input method framework.
func (s *Session) SetFocused(focused bool) {
	s.host.loop.Post(func() { s.focused = focused })
}

// SetSelectionRange moves the local caret. The application owns the real
// caret, which already sits after committed text.
func (s *Session) SetSelectionRange(start, end int) {
	if end < 0 {
		end = 0
	}
	if end > len(s.text) {
		end = len(s.text)
	}
	s.cursor = end
}

// DispatchEvent hands ev to the host's listeners.
func (s *Session) DispatchEvent(ev expand.Event) {
	s.host.page.DispatchEvent(ev)
}
