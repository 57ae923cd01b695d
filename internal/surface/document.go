package surface

import (
	"strings"

	"snippetd/internal/expand"
)

// Node is an element or text node of a Document.
type Node interface {
	Parent() *Element
	TextContent() string
	setParent(p *Element)
}

// Text is a leaf node holding character data.
type Text struct {
	data   []rune
	parent *Element
}

// NewText creates a detached text node.
func NewText(s string) *Text { return &Text{data: []rune(s)} }

// Parent returns the containing element.
func (t *Text) Parent() *Element { return t.parent }

// Data returns the node's characters.
func (t *Text) Data() string { return string(t.data) }

// TextContent returns the node's characters.
func (t *Text) TextContent() string { return string(t.data) }

// Len returns the length in runes.
func (t *Text) Len() int { return len(t.data) }

func (t *Text) setParent(p *Element) { t.parent = p }

// Element is an inner node.
type Element struct {
	Tag      string
	children []Node
	parent   *Element
}

// NewElement creates a detached element.
func NewElement(tag string) *Element { return &Element{Tag: tag} }

// Parent returns the containing element.
func (e *Element) Parent() *Element { return e.parent }

// Children returns the child nodes in order.
func (e *Element) Children() []Node { return e.children }

// TextContent concatenates the text of all descendants.
func (e *Element) TextContent() string {
	var b strings.Builder
	for _, c := range e.children {
		b.WriteString(c.TextContent())
	}
	return b.String()
}

func (e *Element) setParent(p *Element) { e.parent = p }

// Append adds n as the last child and returns it.
func (e *Element) Append(n Node) Node {
	n.setParent(e)
	e.children = append(e.children, n)
	return n
}

// AppendText adds a new text node as the last child.
func (e *Element) AppendText(s string) *Text {
	t := NewText(s)
	e.Append(t)
	return t
}

// AppendElement adds a new element as the last child.
func (e *Element) AppendElement(tag string) *Element {
	c := NewElement(tag)
	e.Append(c)
	return c
}

func (e *Element) indexOf(n Node) int {
	for i, c := range e.children {
		if c == n {
			return i
		}
	}
	return -1
}

func (e *Element) insertAt(i int, n Node) {
	n.setParent(e)
	e.children = append(e.children, nil)
	copy(e.children[i+1:], e.children[i:])
	e.children[i] = n
}

// Position is a caret location. For a Text container Offset counts runes;
// for an Element it is a child index.
type Position struct {
	Container Node
	Offset    int
}

// Document is a rich editable region: a tree of nodes with a caret.
type Document struct {
	root      *Element
	caret     Position
	hasCaret  bool
	listeners listeners
	page      *Page
}

// NewDocument creates an empty document with no caret.
func NewDocument() *Document {
	return &Document{root: NewElement("body"), listeners: listeners{}}
}

// Root returns the top-level element.
func (d *Document) Root() *Element { return d.root }

// Text returns the document's full text.
func (d *Document) Text() string { return d.root.TextContent() }

// SetCaret collapses the caret to offset within container.
func (d *Document) SetCaret(container Node, offset int) {
	d.caret = Position{Container: container, Offset: offset}
	d.hasCaret = true
}

// ClearCaret removes the caret.
func (d *Document) ClearCaret() {
	d.caret = Position{}
	d.hasCaret = false
}

// Caret returns the caret position. ok is false when there is none.
func (d *Document) Caret() (Position, bool) { return d.caret, d.hasCaret }

// CaretOffset returns the caret as a rune offset into Text. ok is false
// when there is no caret or its container is not in the document.
func (d *Document) CaretOffset() (offset int, ok bool) {
	if !d.hasCaret {
		return 0, false
	}
	var walk func(e *Element) bool
	walk = func(e *Element) bool {
		for i, c := range e.children {
			if Node(e) == d.caret.Container && i == d.caret.Offset {
				return true
			}
			switch c := c.(type) {
			case *Text:
				if Node(c) == d.caret.Container {
					offset += clamp(d.caret.Offset, 0, len(c.data))
					return true
				}
				offset += len(c.data)
			case *Element:
				if walk(c) {
					return true
				}
			}
		}
		return Node(e) == d.caret.Container
	}
	if !walk(d.root) {
		return 0, false
	}
	return offset, true
}

// CaretContainer implements expand.Rich.
func (d *Document) CaretContainer() (any, bool) {
	if !d.hasCaret {
		return nil, false
	}
	return d.caret.Container, true
}

// DeleteText implements expand.Rich. Nodes that are not *Text are left
// alone.
func (d *Document) DeleteText(node expand.TextNode, offset, count int) {
	t, ok := node.(*Text)
	if !ok {
		return
	}
	start := clamp(offset, 0, len(t.data))
	end := clamp(offset+count, start, len(t.data))
	t.data = append(t.data[:start:start], t.data[end:]...)

	if d.hasCaret && d.caret.Container == Node(t) {
		switch {
		case d.caret.Offset > end:
			d.caret.Offset -= end - start
		case d.caret.Offset > start:
			d.caret.Offset = start
		}
	}
}

// InsertTextAfter implements expand.Rich.
func (d *Document) InsertTextAfter(node expand.TextNode, text string) expand.TextNode {
	t := NewText(text)
	ref, ok := node.(Node)
	if !ok || ref.Parent() == nil {
		d.root.Append(t)
		return t
	}
	parent := ref.Parent()
	parent.insertAt(parent.indexOf(ref)+1, t)
	return t
}

// SetCaretAfter implements expand.Rich.
func (d *Document) SetCaretAfter(node expand.TextNode) {
	ref, ok := node.(Node)
	if !ok || ref.Parent() == nil {
		return
	}
	parent := ref.Parent()
	d.SetCaret(parent, parent.indexOf(ref)+1)
}

// AddEventListener registers fn for events of type t on this document.
func (d *Document) AddEventListener(t expand.EventType, fn Listener) {
	d.listeners.add(t, fn)
}

// DispatchEvent delivers ev to the document's listeners, then to its page.
func (d *Document) DispatchEvent(ev expand.Event) {
	d.listeners.fire(ev)
	d.page.bubble(ev)
}

// Type inserts s at the caret and raises a user input notification. When
// the caret sits between nodes, text joins the preceding text node if
// there is one.
func (d *Document) Type(s string) {
	if !d.hasCaret {
		d.SetCaret(d.root, len(d.root.children))
	}
	in := []rune(s)

	switch c := d.caret.Container.(type) {
	case *Text:
		off := clamp(d.caret.Offset, 0, len(c.data))
		out := make([]rune, 0, len(c.data)+len(in))
		out = append(out, c.data[:off]...)
		out = append(out, in...)
		out = append(out, c.data[off:]...)
		c.data = out
		d.caret.Offset = off + len(in)
	case *Element:
		idx := clamp(d.caret.Offset, 0, len(c.children))
		if idx > 0 {
			if prev, ok := c.children[idx-1].(*Text); ok {
				prev.data = append(prev.data, in...)
				d.SetCaret(prev, len(prev.data))
				break
			}
		}
		t := NewText(s)
		c.insertAt(idx, t)
		d.SetCaret(t, len(t.data))
	}

	d.DispatchEvent(expand.Event{Type: expand.EventInput, Target: d})
}
