package surface

import "snippetd/internal/expand"

// FieldKind distinguishes single-line from multi-line fields.
type FieldKind int

const (
	KindInput FieldKind = iota
	KindTextArea
)

func (k FieldKind) String() string {
	if k == KindTextArea {
		return "textarea"
	}
	return "input"
}

// Field is a flat text editing surface. Offsets count runes.
type Field struct {
	kind      FieldKind
	name      string
	value     []rune
	selStart  int
	selEnd    int
	focused   bool
	listeners listeners
	page      *Page
}

// NewField creates a field that is not attached to a page.
func NewField(kind FieldKind, name string) *Field {
	return newField(kind, name)
}

func newField(kind FieldKind, name string) *Field {
	return &Field{kind: kind, name: name, listeners: listeners{}}
}

// Kind returns the field kind.
func (f *Field) Kind() FieldKind { return f.kind }

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// Value returns the current text.
func (f *Field) Value() string { return string(f.value) }

// SetValue replaces the text. The selection keeps its offsets, clamped to
// the new value.
func (f *Field) SetValue(v string) {
	f.value = []rune(v)
	f.SetSelectionRange(f.selStart, f.selEnd)
}

// Focus gives the field input focus.
func (f *Field) Focus() { f.focused = true }

// Blur removes input focus.
func (f *Field) Blur() { f.focused = false }

// Focused reports whether the field has input focus.
func (f *Field) Focused() bool { return f.focused }

// SetSelectionRange selects [start, end), clamped to the value.
func (f *Field) SetSelectionRange(start, end int) {
	f.selStart = clamp(start, 0, len(f.value))
	f.selEnd = clamp(end, f.selStart, len(f.value))
}

// Selection returns the selected range.
func (f *Field) Selection() (start, end int) { return f.selStart, f.selEnd }

// Cursor returns the caret position, which is the end of the selection.
func (f *Field) Cursor() int { return f.selEnd }

// AddEventListener registers fn for events of type t on this field.
func (f *Field) AddEventListener(t expand.EventType, fn Listener) {
	f.listeners.add(t, fn)
}

// DispatchEvent delivers ev to the field's listeners, then to its page.
func (f *Field) DispatchEvent(ev expand.Event) {
	f.listeners.fire(ev)
	f.page.bubble(ev)
}

// Type inserts s at the caret, replacing any selection, and raises a user
// input notification.
func (f *Field) Type(s string) {
	in := []rune(s)
	if f.kind == KindInput {
		in = stripNewlines(in)
	}
	out := make([]rune, 0, len(f.value)+len(in))
	out = append(out, f.value[:f.selStart]...)
	out = append(out, in...)
	out = append(out, f.value[f.selEnd:]...)
	f.value = out
	f.selStart += len(in)
	f.selEnd = f.selStart
	f.DispatchEvent(expand.Event{Type: expand.EventInput, Target: f})
}

func stripNewlines(rs []rune) []rune {
	out := rs[:0:0]
	for _, r := range rs {
		if r != '\n' && r != '\r' {
			out = append(out, r)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
