package ime

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snippetd/internal/expand"
	"snippetd/internal/logging"
	"snippetd/internal/snippet"
	"snippetd/internal/surface"
	"snippetd/internal/trigger"
)

type emitted struct {
	op     string
	offset int32
	nchars uint32
	text   string
}

type fakeEmitter struct {
	calls []emitted
	err   error

	// failCommits fails that many commits before succeeding again.
	failCommits int
}

func (f *fakeEmitter) DeleteSurroundingText(offset int32, nchars uint32) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, emitted{op: "delete", offset: offset, nchars: nchars})
	return nil
}

func (f *fakeEmitter) CommitText(text string) error {
	if f.err != nil {
		return f.err
	}
	if f.failCommits > 0 {
		f.failCommits--
		return errors.New("commit rejected")
	}
	f.calls = append(f.calls, emitted{op: "commit", text: text})
	return nil
}

type imeHarness struct {
	loop    *surface.Loop
	host    *Host
	emitter *fakeEmitter
	session *Session
	results []expand.Result
}

func newIMEHarness(t *testing.T, entries ...snippet.Entry) *imeHarness {
	t.Helper()
	index := trigger.NewIndex()
	index.Rebuild(entries)

	h := &imeHarness{
		loop:    surface.NewLoop(logging.Discard(), nil),
		emitter: &fakeEmitter{},
	}
	engine := expand.New(index, h.loop, expand.WithLogger(logging.Discard()))
	h.host = NewHost(h.loop, engine, func(res expand.Result, _ time.Duration) {
		h.results = append(h.results, res)
	}, logging.Discard())
	h.session = h.host.NewSession(h.emitter)
	return h
}

func TestSessionExpandsAtCaret(t *testing.T) {
	h := newIMEHarness(t, snippet.Entry{Code: "@em", Text: "user@example.com"})

	h.session.Update("hello @em  world", 10)
	h.loop.Drain()

	require.Len(t, h.results, 2)
	assert.Equal(t, expand.ReasonSynthetic, h.results[0].Reason)
	assert.Equal(t, expand.OutcomeExpanded, h.results[1].Outcome)
	assert.Equal(t, []emitted{
		{op: "delete", offset: -4, nchars: 4},
		{op: "commit", text: "user@example.com"},
	}, h.emitter.calls)

	text, cursor := h.session.Surrounding()
	assert.Equal(t, "hello user@example.com world", text)
	assert.Equal(t, 22, cursor)
	assert.True(t, h.session.Focused())
}

func TestSessionEchoDoesNotRescan(t *testing.T) {
	h := newIMEHarness(t, snippet.Entry{Code: "@em", Text: "user@example.com"})

	h.session.Update("@em ", 4)
	h.loop.Drain()
	require.Len(t, h.emitter.calls, 2)

	// The application reports the committed text back.
	h.session.Update("user@example.com", 16)
	h.loop.Drain()

	assert.Len(t, h.emitter.calls, 2)
	stats := h.host.Stats()
	assert.Equal(t, 1, stats.Updates)
	assert.Equal(t, 1, stats.Unchanged)
	assert.Equal(t, 1, stats.Commits)
}

func TestSessionNoMatch(t *testing.T) {
	h := newIMEHarness(t, snippet.Entry{Code: "@em", Text: "user@example.com"})

	h.session.Update("hello ", 6)
	h.loop.Drain()

	require.Len(t, h.results, 1)
	assert.Equal(t, expand.OutcomeNoMatch, h.results[0].Outcome)
	assert.Empty(t, h.emitter.calls)
}

func TestSessionIgnoresTextAfterCaret(t *testing.T) {
	h := newIMEHarness(t, snippet.Entry{Code: "@em", Text: "x"})

	h.session.Update("ab @em ", 2)
	h.loop.Drain()

	require.Len(t, h.results, 1)
	assert.Equal(t, expand.OutcomeNoMatch, h.results[0].Outcome)
	assert.Equal(t, "ab", h.session.Value())
}

func TestSessionRuneOffsets(t *testing.T) {
	h := newIMEHarness(t, snippet.Entry{Code: "→", Text: "arrow"})

	h.session.Update("é → ", 4)
	h.loop.Drain()

	assert.Equal(t, []emitted{
		{op: "delete", offset: -2, nchars: 2},
		{op: "commit", text: "arrow"},
	}, h.emitter.calls)
	assert.Equal(t, "é arrow", h.session.Value())
}

func TestSessionEmptyExpansion(t *testing.T) {
	h := newIMEHarness(t, snippet.Entry{Code: "@sig", Text: ""})

	h.session.Update("bye @sig ", 9)
	h.loop.Drain()

	assert.Equal(t, []emitted{{op: "delete", offset: -5, nchars: 5}}, h.emitter.calls)
	assert.Equal(t, "bye ", h.session.Value())
}

func TestSessionEmitError(t *testing.T) {
	h := newIMEHarness(t, snippet.Entry{Code: "@em", Text: "x"})
	h.emitter.err = errors.New("bus gone")

	h.session.Update("@em ", 4)
	h.loop.Drain()

	require.Len(t, h.results, 1)
	assert.Equal(t, expand.OutcomeFailed, h.results[0].Outcome)
	assert.Equal(t, 1, h.host.Stats().EmitErrors)
	assert.Equal(t, 0, h.host.Stats().Commits)
	assert.Equal(t, "@em ", h.session.Value())
}

func TestSessionFailedCommitRestoresText(t *testing.T) {
	h := newIMEHarness(t, snippet.Entry{Code: "@em", Text: "user@example.com"})
	h.emitter.failCommits = 1

	h.session.Update("hello @em  world", 10)
	assert.Equal(t, 1, h.loop.Drain(), "nothing deferred after a failed write")

	assert.Equal(t, []emitted{
		{op: "delete", offset: -4, nchars: 4},
		{op: "commit", text: "@em "},
	}, h.emitter.calls)

	require.Len(t, h.results, 1, "no synthetic notifications")
	res := h.results[0]
	assert.Equal(t, expand.OutcomeFailed, res.Outcome)
	assert.Equal(t, expand.ReasonWriteFailed, res.Reason)
	assert.ErrorContains(t, res.Err, "commit rejected")
	assert.NotContains(t, res.Path, expand.StateMutated)

	text, cursor := h.session.Surrounding()
	assert.Equal(t, "hello @em  world", text)
	assert.Equal(t, 10, cursor)
	assert.False(t, h.session.Focused())

	stats := h.host.Stats()
	assert.Equal(t, 1, stats.EmitErrors)
	assert.Equal(t, 0, stats.Commits)
}

func TestSessionFailedRestoreForgetsText(t *testing.T) {
	h := newIMEHarness(t, snippet.Entry{Code: "@em", Text: "user@example.com"})
	h.emitter.failCommits = 2

	h.session.Update("@em ", 4)
	h.loop.Drain()

	assert.Equal(t, []emitted{{op: "delete", offset: -4, nchars: 4}}, h.emitter.calls)
	assert.Equal(t, "", h.session.Value())

	// The next report is scanned again even though it repeats the old text.
	h.session.Update("@em ", 4)
	h.loop.Drain()

	assert.Equal(t, 2, h.host.Stats().Updates)
	assert.Equal(t, "user@example.com", h.session.Value())
}

func TestSessionResetForgetsText(t *testing.T) {
	h := newIMEHarness(t)

	h.session.Update("abc", 3)
	h.session.Reset()
	h.session.Update("abc", 3)
	h.loop.Drain()

	assert.Equal(t, 2, h.host.Stats().Updates)
}

func TestSessionClampsCursor(t *testing.T) {
	h := newIMEHarness(t)

	h.session.Update("abc", 99)
	h.loop.Drain()

	text, cursor := h.session.Surrounding()
	assert.Equal(t, "abc", text)
	assert.Equal(t, 3, cursor)
}

func TestHostCountsSessions(t *testing.T) {
	h := newIMEHarness(t)
	h.host.NewSession(&fakeEmitter{})
	assert.Equal(t, 2, h.host.Stats().Sessions)
}
