// Package ime hosts the expansion engine inside the desktop input method
// framework.
//
// On Linux snippetd registers an IBus engine over D-Bus. IBus reports the
// text around the caret of the focused application through
// SetSurroundingText. Each report becomes a Session update: the session
// acts as a flat text surface whose value is the text before the caret,
// and every change is posted to the event loop as an input notification.
// When the engine rewrites the value, the session turns the edit into a
// DeleteSurroundingText signal for the replaced tail followed by a
// CommitText signal for the new tail. The application places the caret
// after committed text on its own.
//
// Key events are never consumed; the engine is transparent to typing.
package ime
