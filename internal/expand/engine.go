package expand

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"snippetd/internal/logging"
	"snippetd/internal/trigger"
)

// Snapshotter provides the trigger mapping current at the time of a call.
type Snapshotter interface {
	Snapshot() trigger.Map
}

// Engine turns input notifications into snippet expansions. Handle must be
// called from the host's event loop; the engine itself holds no per-event
// state between calls.
type Engine struct {
	index     Snapshotter
	scheduler Scheduler
	observers []Observer
	logger    *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers an observer for state transitions.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine reading triggers from index. Deferred cursor
// repositioning on plain surfaces runs through scheduler.
func New(index Snapshotter, scheduler Scheduler, opts ...Option) *Engine {
	e := &Engine{
		index:     index,
		scheduler: scheduler,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Default()
	}
	e.logger = e.logger.WithComponent("expand")
	return e
}

// run tracks one pass through the state machine.
type run struct {
	engine *Engine
	event  Event
	state  State
	result Result
}

func (r *run) to(next State) {
	if !CanTransition(r.state, next) {
		panic(fmt.Sprintf("expand: invalid transition %s -> %s", r.state, next))
	}
	prev := r.state
	r.state = next
	r.result.Path = append(r.result.Path, next)
	for _, o := range r.engine.observers {
		o.OnTransition(prev, next, r.event)
	}
}

func (r *run) ignore(reason Reason) Result {
	r.result.Outcome = OutcomeIgnored
	r.result.Reason = reason
	r.to(StateIgnored)
	r.to(StateIdle)
	return r.result
}

func (r *run) fail(err error) Result {
	r.result.Outcome = OutcomeFailed
	r.result.Reason = ReasonWriteFailed
	r.result.Err = err
	r.to(StateFailed)
	r.to(StateIdle)
	return r.result
}

func (r *run) noMatch() Result {
	r.result.Outcome = OutcomeNoMatch
	r.to(StateNoMatch)
	r.to(StateIdle)
	return r.result
}

// Handle processes one input notification. Events that are synthetic or
// whose target is neither a Plain nor a Rich surface leave everything
// untouched.
func (e *Engine) Handle(ev Event) Result {
	r := &run{
		engine: e,
		event:  ev,
		state:  StateIdle,
		result: Result{Path: []State{StateIdle}},
	}

	var (
		plain Plain
		rich  Rich
	)
	switch t := ev.Target.(type) {
	case Plain:
		plain = t
		r.result.Kind = KindPlain
	case Rich:
		rich = t
		r.result.Kind = KindRich
	}
	r.to(StateClassified)

	switch {
	case ev.Synthetic:
		return r.ignore(ReasonSynthetic)
	case plain != nil:
		return e.handlePlain(r, plain)
	case rich != nil:
		return e.handleRich(r, rich)
	default:
		return r.ignore(ReasonUnsupportedTarget)
	}
}

func (e *Engine) handlePlain(r *run, p Plain) Result {
	value := p.Value()
	r.to(StateScanned)

	trig, expansion, ok := e.index.Snapshot().Match(value)
	if !ok {
		return r.noMatch()
	}
	r.result.Trigger, r.result.Expansion = trig, expansion
	r.to(StateMatched)

	next := strings.TrimSuffix(value, trig) + expansion
	if w, ok := p.(ValueWriter); ok {
		if err := w.WriteValue(next); err != nil {
			e.logger.Warn("expansion not applied", "trigger", trig, "error", err)
			return r.fail(err)
		}
	} else {
		p.SetValue(next)
	}
	r.to(StateMutated)

	// The host re-renders the value after this handler returns and would
	// clobber a cursor set now.
	e.scheduler.Defer(func() {
		end := utf8.RuneCountInString(p.Value())
		p.Focus()
		p.SetSelectionRange(end, end)
	})
	r.to(StateCursorSet)

	p.DispatchEvent(Event{Type: EventInput, Target: p, Synthetic: true})
	p.DispatchEvent(Event{Type: EventChange, Target: p, Synthetic: true})
	r.to(StateNotifiedHost)

	e.logger.Debug("expanded plain surface", "trigger", trig)
	r.result.Outcome = OutcomeExpanded
	r.to(StateIdle)
	return r.result
}

func (e *Engine) handleRich(r *run, rs Rich) Result {
	container, ok := rs.CaretContainer()
	if !ok {
		return r.ignore(ReasonNoCaret)
	}
	node, ok := container.(TextNode)
	if !ok {
		return r.ignore(ReasonCaretNotText)
	}
	text := node.Data()
	r.to(StateScanned)

	trig, expansion, ok := e.index.Snapshot().Match(text)
	if !ok {
		return r.noMatch()
	}
	r.result.Trigger, r.result.Expansion = trig, expansion
	r.to(StateMatched)

	n := utf8.RuneCountInString(trig)
	rs.DeleteText(node, utf8.RuneCountInString(text)-n, n)
	inserted := rs.InsertTextAfter(node, expansion)
	r.to(StateMutated)

	rs.SetCaretAfter(inserted)
	r.to(StateCursorSet)

	rs.DispatchEvent(Event{Type: EventInput, Target: rs, Synthetic: true})
	r.to(StateNotifiedHost)

	e.logger.Debug("expanded rich surface", "trigger", trig)
	r.result.Outcome = OutcomeExpanded
	r.to(StateIdle)
	return r.result
}

// LogObserver returns an observer that logs every transition at debug level.
func LogObserver(l *logging.Logger) Observer {
	return ObserverFunc(func(from, to State, ev Event) {
		l.Debug("engine transition", "from", from.String(), "to", to.String(), "event", string(ev.Type))
	})
}
