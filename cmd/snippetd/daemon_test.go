package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snippetd/internal/config"
	"snippetd/internal/logging"
	"snippetd/internal/snippet"
	"snippetd/internal/store"
)

type recordingEmitter struct {
	mu      sync.Mutex
	commits []string
}

func (r *recordingEmitter) DeleteSurroundingText(offset int32, nchars uint32) error {
	return nil
}

func (r *recordingEmitter) CommitText(text string) error {
	r.mu.Lock()
	r.commits = append(r.commits, text)
	r.mu.Unlock()
	return nil
}

func (r *recordingEmitter) Commits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commits...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SNIPPETD_DATA_DIR", dir)

	cfg := config.DefaultConfig()
	cfg.Storage.Type = config.StorageFile
	cfg.Storage.FilePath = filepath.Join(dir, "snippets.toml")
	cfg.Storage.Path = filepath.Join(dir, "snippets.db")
	cfg.Watch.DebounceMs = 50
	cfg.IBus.Enabled = false
	cfg.Metrics.Path = filepath.Join(dir, "snippetd.prom")
	cfg.Metrics.FlushIntervalSec = 1
	return cfg
}

func seed(t *testing.T, cfg *config.Config, entries ...snippet.Entry) {
	t.Helper()
	st, err := store.Open(cfg.Storage, store.WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer st.Close()
	for _, e := range entries {
		_, err := st.Save(context.Background(), e)
		require.NoError(t, err)
	}
}

func startDaemon(t *testing.T, cfg *config.Config) (*daemon, func()) {
	t.Helper()
	d, err := newDaemon(cfg, logging.Discard(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()

	return d, func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("daemon did not stop")
		}
	}
}

func TestDaemonLoadsTriggersAtStartup(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg, snippet.New("@em", "user@example.com"))

	d, stop := startDaemon(t, cfg)
	defer stop()

	require.Eventually(t, func() bool { return d.index.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "user@example.com", d.index.Snapshot()["@em "])
}

func TestDaemonFollowsExternalEdits(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg, snippet.New("@em", "user@example.com"))

	d, stop := startDaemon(t, cfg)
	defer stop()
	require.Eventually(t, func() bool { return d.index.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	seed(t, cfg, snippet.New("@addr", "1 Main St"))

	require.Eventually(t, func() bool { return d.index.Len() == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "1 Main St", d.index.Snapshot()["@addr "])
}

func TestDaemonExpandsThroughHost(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg, snippet.New("@em", "user@example.com"))

	d, stop := startDaemon(t, cfg)
	require.Eventually(t, func() bool { return d.index.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	emitter := &recordingEmitter{}
	session := d.host.NewSession(emitter)
	session.Update("mail @em ", 9)

	require.Eventually(t, func() bool { return len(emitter.Commits()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"user@example.com"}, emitter.Commits())
	assert.Equal(t, uint64(1), d.metrics.Expansions.Value())

	stop()

	data, err := os.ReadFile(cfg.Metrics.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "snippetd_expansions_total 1")
	assert.Contains(t, string(data), "snippetd_triggers 1")
}

func TestDaemonSurvivesUnreadableStore(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Storage.FilePath, []byte("not = [valid"), 0600))

	d, stop := startDaemon(t, cfg)
	defer stop()

	require.Eventually(t, func() bool { return d.metrics.RefreshFailures.Value() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, d.index.Len())
}

func TestReconfigureSetsLogLevel(t *testing.T) {
	cfg := testConfig(t)
	logger := logging.Discard()
	d := &daemon{cfg: cfg, logger: logger}

	next := cfg.Clone()
	next.Logging.Level = "debug"
	d.reconfigure(next)

	assert.Equal(t, logging.LevelDebug, logger.GetLevel())
}
