// Package expand implements the per-keystroke expansion engine.
//
// Every input notification runs through an explicit state machine:
//
//	Idle → Classified → Ignored                                   → Idle
//	                  → Scanned → NoMatch                         → Idle
//	                            → Matched → Mutated → CursorSet
//	                                      → NotifiedHost          → Idle
//
// The engine understands two kinds of editing surface:
//
//   - Plain surfaces hold one flat string value and a linear cursor, like a
//     text field. The whole value is scanned; on a match the trailing trigger
//     is replaced by the expansion and the cursor is moved to the end of the
//     value on the next turn of the host's event loop, after the host has
//     rendered the new value.
//   - Rich surfaces are node trees. Only the text node holding the caret is
//     scanned; on a match the trigger is trimmed from that node, a new text
//     node with the expansion is inserted after it and the caret is placed
//     right after the new node, synchronously.
//
// After mutating, the engine dispatches synthetic input (and, for plain
// surfaces, change) events back to the target so other listeners see the
// edit as if it had been typed. The engine ignores synthetic events, so an
// expansion never re-triggers within the same keystroke.
//
// At most one trigger fires per event. When several triggers are suffixes
// of the text, the longest one wins.
package expand
