// Package watcher reports content changes of individual files. It is used
// to notice edits made to the snippet store by other processes.
package watcher

import (
	"crypto/sha256"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event reports a file whose content changed.
type Event struct {
	Path      string
	Hash      [32]byte
	Size      int64
	Removed   bool
	Timestamp time.Time
}

// fileState is what the watcher knows about one path.
type fileState struct {
	hash    [32]byte
	exists  bool
	pending bool
	lastMod time.Time
}

// Watcher monitors a fixed set of files. Bursts of filesystem events are
// debounced and a file is only reported once its content hash differs
// from the last one seen.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	paths     []string
	debounce  time.Duration

	state   map[string]*fileState
	stateMu sync.Mutex

	events chan Event
	errors chan error

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New creates a watcher for the given files. The files need not exist
// yet, but their directories must.
func New(paths []string, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		debounce:  debounce,
		state:     make(map[string]*fileState),
		events:    make(chan Event, 16),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsWatcher.Close()
			return nil, err
		}
		w.paths = append(w.paths, abs)
	}
	return w, nil
}

// Events returns the channel of content changes.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start records the current content of every file and begins watching.
func (w *Watcher) Start() error {
	dirs := make(map[string]bool)
	for _, path := range w.paths {
		dir := filepath.Dir(path)
		if !dirs[dir] {
			if err := w.fsWatcher.Add(dir); err != nil {
				return err
			}
			dirs[dir] = true
		}

		st := &fileState{}
		hash, _, err := HashFile(path)
		switch {
		case err == nil:
			st.hash, st.exists = hash, true
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
		w.stateMu.Lock()
		w.state[path] = st
		w.stateMu.Unlock()
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()

	return nil
}

// Stop shuts the watcher down and closes its channels.
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
		close(w.events)
		close(w.errors)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			w.stateMu.Lock()
			if st, tracked := w.state[filepath.Clean(event.Name)]; tracked {
				st.pending = true
				st.lastMod = time.Now()
			}
			w.stateMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		}
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	tick := w.debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case now := <-ticker.C:
			w.checkStableFiles(now)
		}
	}
}

// checkStableFiles hashes files that have been quiet for the debounce
// interval. The lock is released while hashing.
func (w *Watcher) checkStableFiles(now time.Time) {
	threshold := now.Add(-w.debounce)

	type candidate struct {
		path    string
		lastMod time.Time
	}
	var stable []candidate
	w.stateMu.Lock()
	for path, st := range w.state {
		if st.pending && st.lastMod.Before(threshold) {
			stable = append(stable, candidate{path: path, lastMod: st.lastMod})
		}
	}
	w.stateMu.Unlock()

	for _, c := range stable {
		hash, size, err := HashFile(c.path)
		exists := err == nil
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			w.sendError(err)
			continue
		}

		w.stateMu.Lock()
		st := w.state[c.path]
		if st.lastMod != c.lastMod {
			// Modified while hashing; wait for it to settle again.
			w.stateMu.Unlock()
			continue
		}
		changed := exists != st.exists || hash != st.hash
		w.stateMu.Unlock()

		if !changed {
			w.settle(st, c.lastMod)
			continue
		}

		ev := Event{
			Path:      c.path,
			Hash:      hash,
			Size:      size,
			Removed:   !exists,
			Timestamp: now,
		}
		select {
		case w.events <- ev:
			w.stateMu.Lock()
			st.hash, st.exists = hash, exists
			w.stateMu.Unlock()
			w.settle(st, c.lastMod)
		default:
			// Channel full, retry on the next tick.
		}
	}
}

// settle clears the pending flag unless the file was touched again since
// lastMod.
func (w *Watcher) settle(st *fileState, lastMod time.Time) {
	w.stateMu.Lock()
	if st.lastMod == lastMod {
		st.pending = false
	}
	w.stateMu.Unlock()
}

func (w *Watcher) sendError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

// HashFile computes the SHA-256 hash and size of a file.
func HashFile(path string) ([32]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return [32]byte{}, 0, err
	}

	var hash [32]byte
	copy(hash[:], h.Sum(nil))
	return hash, size, nil
}

// WatchedPaths returns the absolute paths being watched.
func (w *Watcher) WatchedPaths() []string {
	return w.paths
}

// Pending returns the number of files with unsettled changes.
func (w *Watcher) Pending() int {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	n := 0
	for _, st := range w.state {
		if st.pending {
			n++
		}
	}
	return n
}
