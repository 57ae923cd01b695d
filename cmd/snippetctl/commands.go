package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"snippetd/internal/config"
	"snippetd/internal/expand"
	"snippetd/internal/logging"
	"snippetd/internal/snippet"
	"snippetd/internal/store"
	"snippetd/internal/surface"
	"snippetd/internal/trigger"
)

const shortIDLen = 8

func (c *cli) openStore() (store.Collection, error) {
	if err := c.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return store.Open(c.cfg.Storage, store.WithLogger(logging.Discard()))
}

func (c *cli) withStore(fn func(ctx context.Context, st store.Collection) error) error {
	st, err := c.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(context.Background(), st)
}

// resolve finds the entry whose ID is id or starts with it.
func resolve(ctx context.Context, st store.Collection, id string) (snippet.Entry, error) {
	e, err := st.Find(ctx, id)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return e, err
	}

	entries, err := st.Get(ctx)
	if err != nil {
		return snippet.Entry{}, err
	}
	var matches []snippet.Entry
	for _, e := range entries {
		if strings.HasPrefix(e.ID, id) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return snippet.Entry{}, fmt.Errorf("%s: %w", id, store.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return snippet.Entry{}, fmt.Errorf("id prefix %q is ambiguous (%d matches)", id, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (c *cli) cmdAdd(code, text string) error {
	return c.withStore(func(ctx context.Context, st store.Collection) error {
		e := snippet.New(code, text)
		if _, err := st.Save(ctx, e); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Added %s (%s)\n", shortID(e.ID), e.Trigger())
		return nil
	})
}

func (c *cli) cmdEdit(id, code, text string) error {
	return c.withStore(func(ctx context.Context, st store.Collection) error {
		e, err := resolve(ctx, st, id)
		if err != nil {
			return err
		}
		e.Code, e.Text = strings.TrimSpace(code), strings.TrimSpace(text)
		if _, err := st.Save(ctx, e); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Updated %s\n", shortID(e.ID))
		return nil
	})
}

func (c *cli) cmdList(term string) error {
	return c.withStore(func(ctx context.Context, st store.Collection) error {
		entries, err := st.Get(ctx)
		if err != nil {
			return err
		}
		entries = snippet.Filter(entries, term)
		if len(entries) == 0 {
			fmt.Fprintln(c.stdout, "No snippets.")
			return nil
		}

		w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCODE\tTEXT")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", shortID(e.ID), e.Code, oneLine(snippet.Preview(e.Text, 48)))
		}
		return w.Flush()
	})
}

func (c *cli) cmdShow(id string) error {
	return c.withStore(func(ctx context.Context, st store.Collection) error {
		e, err := resolve(ctx, st, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "ID:       %s\n", e.ID)
		fmt.Fprintf(c.stdout, "Code:     %s\n", e.Code)
		fmt.Fprintf(c.stdout, "Trigger:  %q\n", e.Trigger())
		if !e.CreatedAt.IsZero() {
			fmt.Fprintf(c.stdout, "Created:  %s\n", e.CreatedAt.Format(time.RFC3339))
		}
		if !e.UpdatedAt.IsZero() {
			fmt.Fprintf(c.stdout, "Updated:  %s\n", e.UpdatedAt.Format(time.RFC3339))
		}
		fmt.Fprintln(c.stdout, "Text:")
		fmt.Fprintln(c.stdout, e.Text)
		return nil
	})
}

func (c *cli) cmdDelete(id string) error {
	return c.withStore(func(ctx context.Context, st store.Collection) error {
		e, err := resolve(ctx, st, id)
		if err != nil {
			return err
		}
		if err := st.Delete(ctx, e.ID); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Deleted %s (%s)\n", shortID(e.ID), e.Code)
		return nil
	})
}

// cmdTry types text one character at a time into a scratch surface wired
// to the expansion engine and reports what happened. With rich set the
// surface is a document instead of a text area.
func (c *cli) cmdTry(text string, rich bool) error {
	return c.withStore(func(ctx context.Context, st store.Collection) error {
		index := trigger.NewIndex()
		if err := trigger.NewRefresher(index, st, st.Scope(), logging.Discard()).Refresh(ctx); err != nil {
			return err
		}

		loop := surface.NewLoop(logging.Discard(), nil)
		page := surface.NewPage()
		engine := expand.New(index, loop, expand.WithLogger(logging.Discard()))

		var expanded []expand.Result
		page.Attach(engine, func(res expand.Result, _ time.Duration) {
			if res.Outcome == expand.OutcomeExpanded {
				expanded = append(expanded, res)
			}
		})

		if rich {
			doc := page.NewDocument()
			for _, r := range text {
				doc.Type(string(r))
				loop.Drain()
			}
			fmt.Fprintf(c.stdout, "Text:   %q\n", doc.Text())
			if off, ok := doc.CaretOffset(); ok {
				fmt.Fprintf(c.stdout, "Caret:  %d\n", off)
			} else {
				fmt.Fprintln(c.stdout, "Caret:  none")
			}
		} else {
			field := page.NewField(surface.KindTextArea, "try")
			for _, r := range text {
				field.Type(string(r))
				loop.Drain()
			}
			fmt.Fprintf(c.stdout, "Value:  %q\n", field.Value())
			fmt.Fprintf(c.stdout, "Cursor: %d\n", field.Cursor())
		}

		if len(expanded) == 0 {
			fmt.Fprintf(c.stdout, "No expansion (%d triggers loaded)\n", index.Len())
			return nil
		}
		for _, res := range expanded {
			fmt.Fprintf(c.stdout, "Expanded %q -> %q\n", res.Trigger, snippet.Preview(res.Expansion, 48))
		}
		return nil
	})
}

func (c *cli) cmdStats() error {
	data, err := os.ReadFile(c.cfg.Metrics.Path)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(c.stdout, "No metrics at %s (is snippetd running?)\n", c.cfg.Metrics.Path)
		return nil
	}
	if err != nil {
		return err
	}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		fmt.Fprintln(c.stdout, line)
	}
	return nil
}

func (c *cli) cmdMigrate(action string) error {
	if c.cfg.Storage.Type == config.StorageFile {
		return errors.New("migrations apply to sqlite storage only")
	}
	db, err := store.OpenDatabase(c.cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	switch action {
	case "status":
	case "up":
		if err := store.MigrateDB(db); err != nil {
			return err
		}
	case "rollback":
		if err := store.RollbackMigration(db); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}

	status, err := store.GetMigrationStatus(db)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Schema version %d of %d\n", status.CurrentVersion, status.LatestVersion)
	for _, m := range status.Pending {
		fmt.Fprintf(c.stdout, "  pending %d: %s\n", m.Version, m.Description)
	}
	return nil
}
