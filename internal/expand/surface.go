package expand

// EventType names a host notification.
type EventType string

// Host notifications the engine reads and synthesizes.
const (
	EventInput  EventType = "input"
	EventChange EventType = "change"
)

// Event is an input notification raised by an editing target.
type Event struct {
	Type   EventType
	Target any

	// Synthetic marks events the engine dispatched itself.
	Synthetic bool
}

// Dispatcher delivers synthesized events to a target's host listeners.
type Dispatcher interface {
	DispatchEvent(ev Event)
}

// Plain is a flat-value editing surface. Offsets count runes.
type Plain interface {
	Dispatcher
	Value() string
	SetValue(v string)
	Focus()
	SetSelectionRange(start, end int)
}

// ValueWriter is implemented by plain surfaces whose writes can fail,
// such as a field owned by another process. A failed WriteValue must leave
// the surface's value as it was.
type ValueWriter interface {
	WriteValue(v string) error
}

// TextNode is a leaf of a rich surface holding character data.
type TextNode interface {
	Data() string
}

// Rich is a structured editing surface. Offsets count runes.
type Rich interface {
	Dispatcher

	// CaretContainer returns the node that holds the caret. ok is false
	// when the surface has no caret.
	CaretContainer() (node any, ok bool)

	// DeleteText removes count characters of node starting at offset.
	DeleteText(node TextNode, offset, count int)

	// InsertTextAfter inserts a new text node holding text immediately
	// after node and returns it.
	InsertTextAfter(node TextNode, text string) TextNode

	// SetCaretAfter collapses the caret to the position right after node.
	SetCaretAfter(node TextNode)
}

// Scheduler runs a task on a later turn of the host's event loop.
type Scheduler interface {
	Defer(task func())
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(task func())

// Defer implements Scheduler.
func (f SchedulerFunc) Defer(task func()) { f(task) }
