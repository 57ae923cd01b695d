// Package store persists the snippet collection and reports changes to it.
//
// Two backends implement Collection: SQLite (scope "local") and a snippet
// file in TOML, YAML or JSON (scope "sync") that can be edited by hand or
// synced between machines. Both notify OnChange listeners after their own
// writes, and Watch picks up edits made by other processes.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"snippetd/internal/config"
	"snippetd/internal/logging"
	"snippetd/internal/snippet"
	"snippetd/internal/watcher"
)

var (
	// ErrNotFound is returned when no entry has the requested ID.
	ErrNotFound = errors.New("snippet not found")

	// ErrInvalidEntry is returned when an entry fails validation on save.
	ErrInvalidEntry = errors.New("invalid snippet")

	// ErrInvalidFile is returned when a snippet file does not match the schema.
	ErrInvalidFile = errors.New("invalid snippet file")
)

// Collection is a persistent, ordered snippet collection.
type Collection interface {
	// Scope names the storage area changes are reported under.
	Scope() string

	// Get returns every entry in authoring order.
	Get(ctx context.Context) ([]snippet.Entry, error)

	// Find returns the entry with the given ID.
	Find(ctx context.Context, id string) (snippet.Entry, error)

	// Save inserts e, or replaces the entry with the same ID. It reports
	// whether an existing entry was replaced.
	Save(ctx context.Context, e snippet.Entry) (updated bool, err error)

	// Delete removes the entry with the given ID.
	Delete(ctx context.Context, id string) error

	// OnChange registers fn to be called after the collection changes.
	OnChange(fn func(snippet.Change))

	// Watch reports changes made by other processes until ctx is done.
	Watch(ctx context.Context) error

	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	logger        *logging.Logger
	debounce      time.Duration
	now           func() time.Time
	busyTimeoutMs int
}

// WithLogger sets the store logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDebounce sets how long the store must be quiet before Watch reports
// an outside change.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{
		debounce: 250 * time.Millisecond,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	o.logger = o.logger.WithComponent("store")
	return o
}

// Open opens the backend selected by cfg.
func Open(cfg config.StorageConfig, opts ...Option) (Collection, error) {
	switch cfg.Type {
	case config.StorageSQLite, "":
		if cfg.BusyTimeoutMs > 0 {
			opts = append([]Option{withBusyTimeout(cfg.BusyTimeoutMs)}, opts...)
		}
		return OpenSQLite(cfg.Path, opts...)
	case config.StorageFile:
		return OpenFile(cfg.FilePath, opts...)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// prepare validates e and fills in its ID and timestamps for saving.
func prepare(e snippet.Entry, now time.Time) (snippet.Entry, error) {
	if err := e.Validate(); err != nil {
		return e, fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	if e.ID == "" {
		e.ID = snippet.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	return e, nil
}

// notifier fans change notifications out to listeners.
type notifier struct {
	scope string
	mu    sync.Mutex
	fns   []func(snippet.Change)
}

func (n *notifier) OnChange(fn func(snippet.Change)) {
	n.mu.Lock()
	n.fns = append(n.fns, fn)
	n.mu.Unlock()
}

func (n *notifier) notify() {
	n.mu.Lock()
	fns := append([]func(snippet.Change){}, n.fns...)
	n.mu.Unlock()

	change := snippet.Change{Scope: n.scope, Keys: []string{snippet.CollectionKey}}
	for _, fn := range fns {
		fn(change)
	}
}

// watchFiles notifies listeners whenever one of paths changes content,
// until ctx is done.
func watchFiles(ctx context.Context, paths []string, o options, n *notifier) error {
	w, err := watcher.New(paths, o.debounce)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return fmt.Errorf("start watcher: %w", err)
	}

	go func() {
		defer w.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events():
				if !ok {
					return
				}
				o.logger.Debug("store changed on disk", "path", ev.Path, "removed", ev.Removed)
				n.notify()
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				o.logger.Warn("store watch error", "error", err)
			}
		}
	}()
	return nil
}
