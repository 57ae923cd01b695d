package trigger

import (
	"context"
	"fmt"
	"time"

	"snippetd/internal/logging"
	"snippetd/internal/snippet"
)

// Source loads the current snippet collection.
type Source interface {
	Get(ctx context.Context) ([]snippet.Entry, error)
}

// RefreshFunc observes every refresh attempt; err is nil on success.
type RefreshFunc func(err error, triggers int, took time.Duration)

// Refresher rebuilds an Index from a Source. A failed load is logged and
// leaves the index untouched.
type Refresher struct {
	index  *Index
	source Source
	scope  string
	logger *logging.Logger

	// Apply runs the swap step. It defaults to calling it inline; the daemon
	// routes it through the event loop so swaps and input handling never
	// interleave.
	Apply func(swap func())

	// OnRefresh, if set, is called after each attempt.
	OnRefresh RefreshFunc
}

// NewRefresher creates a refresher that watches the given storage scope.
func NewRefresher(index *Index, source Source, scope string, logger *logging.Logger) *Refresher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Refresher{
		index:  index,
		source: source,
		scope:  scope,
		logger: logger.WithComponent("trigger"),
		Apply:  func(swap func()) { swap() },
	}
}

// Refresh loads the collection and rebuilds the index.
func (r *Refresher) Refresh(ctx context.Context) error {
	start := time.Now()

	entries, err := r.source.Get(ctx)
	if err != nil {
		err = fmt.Errorf("load snippets: %w", err)
		r.logger.Error("snippet load failed, keeping previous triggers",
			"error", err,
			"triggers", r.index.Len(),
		)
		r.observe(err, r.index.Len(), time.Since(start))
		return err
	}

	r.Apply(func() {
		r.index.Rebuild(entries)
		r.logger.Debug("trigger index rebuilt",
			"entries", len(entries),
			"triggers", r.index.Len(),
		)
		r.observe(nil, r.index.Len(), time.Since(start))
	})
	return nil
}

// HandleChange refreshes the index when change concerns the snippet
// collection in the watched scope. It reports whether a refresh ran.
func (r *Refresher) HandleChange(ctx context.Context, change snippet.Change) bool {
	if change.Scope != r.scope || !change.Touches(snippet.CollectionKey) {
		return false
	}
	_ = r.Refresh(ctx)
	return true
}

func (r *Refresher) observe(err error, triggers int, took time.Duration) {
	if r.OnRefresh != nil {
		r.OnRefresh(err, triggers, took)
	}
}
