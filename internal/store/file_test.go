package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"snippetd/internal/logging"
	"snippetd/internal/snippet"
)

func openTestFile(t *testing.T, name string, opts ...Option) *File {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	f, err := OpenFile(filepath.Join(t.TempDir(), name), opts...)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	return f
}

func TestFileMissingIsEmpty(t *testing.T) {
	f := openTestFile(t, "snippets.toml")
	entries, err := f.Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestFileUnsupportedExtension(t *testing.T) {
	if _, err := OpenFile(filepath.Join(t.TempDir(), "snippets.ini")); err == nil {
		t.Error("expected error for .ini file")
	}
}

func TestFileRoundTrip(t *testing.T) {
	for _, name := range []string{"snippets.toml", "snippets.yaml", "snippets.yml", "snippets.json"} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
			f := openTestFile(t, name, fixedClock(now))

			em := snippet.New("@em", "user@example.com")
			sig := snippet.New("@sig", "Best,\nAlex")
			for _, e := range []snippet.Entry{em, sig} {
				if _, err := f.Save(ctx, e); err != nil {
					t.Fatalf("Save failed: %v", err)
				}
			}

			reopened, err := OpenFile(f.Path(), WithLogger(logging.Discard()))
			if err != nil {
				t.Fatalf("reopen failed: %v", err)
			}
			entries, err := reopened.Get(ctx)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if len(entries) != 2 {
				t.Fatalf("expected 2 entries, got %d", len(entries))
			}
			if entries[0].ID != em.ID || entries[1].Text != "Best,\nAlex" {
				t.Errorf("unexpected entries: %+v", entries)
			}
			if !entries[0].UpdatedAt.Equal(now) {
				t.Errorf("timestamp not preserved: %v", entries[0].UpdatedAt)
			}
		})
	}
}

func TestFileHandWrittenEntriesGetStableIDs(t *testing.T) {
	ctx := context.Background()
	f := openTestFile(t, "snippets.toml")
	content := `
[[snippets]]
code = "@em"
text = "user@example.com"

[[snippets]]
code = "@sig"
text = ""
`
	if err := os.WriteFile(f.Path(), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	first, err := f.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	second, _ := f.Get(ctx)
	if first[0].ID == "" || first[0].ID != second[0].ID || first[0].ID == first[1].ID {
		t.Errorf("expected stable distinct IDs, got %q %q %q", first[0].ID, second[0].ID, first[1].ID)
	}

	got, err := f.Find(ctx, first[1].ID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got.Code != "@sig" || got.Text != "" {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestFileRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"snippets.json": `{"snippets": [{"code": "", "text": "x"}]}`,
		"snippets.yaml": "snippets:\n  - code: two words\n    text: x\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			f := openTestFile(t, name)
			if err := os.WriteFile(f.Path(), []byte(content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := f.Get(context.Background()); !errors.Is(err, ErrInvalidFile) {
				t.Errorf("expected ErrInvalidFile, got %v", err)
			}
		})
	}
}

func TestFileRejectsMalformed(t *testing.T) {
	f := openTestFile(t, "snippets.toml")
	if err := os.WriteFile(f.Path(), []byte("[[snippets]\ncode ="), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := f.Get(context.Background())
	if !errors.Is(err, ErrInvalidFile) {
		t.Errorf("expected ErrInvalidFile, got %v", err)
	}

	// Writes refuse to clobber a file they cannot read.
	if _, err := f.Save(context.Background(), snippet.New("@x", "y")); err == nil {
		t.Error("expected Save to fail on malformed file")
	}
}

func TestFileUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := openTestFile(t, "snippets.json", fixedClock(created))
	rec := newChangeRecorder(f)

	e := snippet.Entry{ID: "fixed", Code: "@a", Text: "one"}
	if updated, err := f.Save(ctx, e); err != nil || updated {
		t.Fatalf("first Save: updated=%v err=%v", updated, err)
	}

	f.opts.now = func() time.Time { return created.Add(time.Minute) }
	if updated, err := f.Save(ctx, snippet.Entry{ID: "fixed", Code: "@a", Text: "two"}); err != nil || !updated {
		t.Fatalf("second Save: updated=%v err=%v", updated, err)
	}

	got, err := f.Find(ctx, "fixed")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got.Text != "two" || !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(created.Add(time.Minute)) {
		t.Errorf("unexpected entry after update: %+v", got)
	}

	if err := f.Delete(ctx, "fixed"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := f.Delete(ctx, "fixed"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if rec.count() != 3 {
		t.Errorf("expected 3 notifications, got %d", rec.count())
	}
	if rec.changes[0].Scope != snippet.ScopeSync {
		t.Errorf("expected sync scope, got %s", rec.changes[0].Scope)
	}
}

func TestFileWriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	f := openTestFile(t, "snippets.yaml")
	for i := 0; i < 3; i++ {
		if _, err := f.Save(ctx, snippet.New("@k", "v")); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(f.Path()))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".snippets.yaml.") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileWatchSeesOutsideEdit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := openTestFile(t, "snippets.toml", WithDebounce(50*time.Millisecond))
	rec := newChangeRecorder(f)
	if err := f.Watch(ctx); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	content := "[[snippets]]\ncode = \"@em\"\ntext = \"user@example.com\"\n"
	if err := os.WriteFile(f.Path(), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case ch := <-rec.ch:
		if ch.Scope != snippet.ScopeSync {
			t.Errorf("expected sync scope, got %s", ch.Scope)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported for outside edit")
	}
}
