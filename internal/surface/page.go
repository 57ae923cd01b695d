package surface

import (
	"time"

	"snippetd/internal/expand"
)

// Listener receives events dispatched to a target.
type Listener func(ev expand.Event)

type listeners map[expand.EventType][]Listener

func (ls listeners) add(t expand.EventType, fn Listener) {
	ls[t] = append(ls[t], fn)
}

func (ls listeners) fire(ev expand.Event) {
	for _, fn := range ls[ev.Type] {
		fn(ev)
	}
}

// Page owns a set of editing targets. Events dispatched to any of its
// targets bubble up to the page, so one listener sees every edit.
type Page struct {
	listeners listeners
}

// NewPage creates an empty page.
func NewPage() *Page {
	return &Page{listeners: listeners{}}
}

// AddEventListener registers fn for events of type t raised by any target
// on the page.
func (p *Page) AddEventListener(t expand.EventType, fn Listener) {
	p.listeners.add(t, fn)
}

// NewField creates a flat text field on the page.
func (p *Page) NewField(kind FieldKind, name string) *Field {
	f := newField(kind, name)
	f.page = p
	return f
}

// NewDocument creates a rich editable region on the page.
func (p *Page) NewDocument() *Document {
	d := NewDocument()
	d.page = p
	return d
}

func (p *Page) bubble(ev expand.Event) {
	if p != nil {
		p.listeners.fire(ev)
	}
}

// Handler processes input notifications.
type Handler interface {
	Handle(ev expand.Event) expand.Result
}

// Attach routes every input notification on the page to h. observe, if
// non-nil, receives each result and how long handling took.
func (p *Page) Attach(h Handler, observe func(res expand.Result, took time.Duration)) {
	p.AddEventListener(expand.EventInput, func(ev expand.Event) {
		start := time.Now()
		res := h.Handle(ev)
		if observe != nil {
			observe(res, time.Since(start))
		}
	})
}

// DispatchEvent delivers ev to the page's listeners. Hosts that own their
// own targets use it to feed notifications into the page.
func (p *Page) DispatchEvent(ev expand.Event) {
	p.bubble(ev)
}
