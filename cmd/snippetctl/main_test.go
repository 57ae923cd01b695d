package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snippetd/internal/config"
)

type ctl struct {
	t          *testing.T
	configPath string
	cfg        *config.Config
}

func newCtl(t *testing.T, storage string) *ctl {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SNIPPETD_DATA_DIR", dir)

	cfg := config.DefaultConfig()
	cfg.Storage.Type = storage
	cfg.Storage.Path = filepath.Join(dir, "snippets.db")
	cfg.Storage.FilePath = filepath.Join(dir, "snippets.yaml")
	cfg.Logging.FilePath = filepath.Join(dir, "snippetd.log")
	cfg.IBus.ComponentPath = filepath.Join(dir, "snippetd.xml")
	cfg.Metrics.Path = filepath.Join(dir, "snippetd.prom")

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, config.SaveConfig(cfg, path))
	return &ctl{t: t, configPath: path, cfg: cfg}
}

func (c *ctl) run(args ...string) (string, string, int) {
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"-config", c.configPath}, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func (c *ctl) mustRun(args ...string) string {
	c.t.Helper()
	out, errOut, code := c.run(args...)
	require.Equal(c.t, 0, code, "stderr: %s", errOut)
	return out
}

// addedID extracts the short ID from "Added <id> (...)".
func addedID(t *testing.T, out string) string {
	t.Helper()
	fields := strings.Fields(out)
	require.GreaterOrEqual(t, len(fields), 2)
	require.Equal(t, "Added", fields[0])
	return fields[1]
}

func TestAddListShowDelete(t *testing.T) {
	for _, storage := range []string{config.StorageSQLite, config.StorageFile} {
		t.Run(storage, func(t *testing.T) {
			c := newCtl(t, storage)

			id := addedID(t, c.mustRun("add", "@em", "user@example.com"))
			c.mustRun("add", "@addr", "1 Main St\nSpringfield")

			out := c.mustRun("list")
			assert.Contains(t, out, "@em")
			assert.Contains(t, out, "1 Main St Springfield")

			out = c.mustRun("list", "main")
			assert.NotContains(t, out, "@em")
			assert.Contains(t, out, "@addr")

			out = c.mustRun("show", id)
			assert.Contains(t, out, "Code:     @em")
			assert.Contains(t, out, `Trigger:  "@em "`)

			c.mustRun("delete", id)
			out = c.mustRun("list", "@em")
			assert.Equal(t, "No snippets.\n", out)
		})
	}
}

func TestEdit(t *testing.T) {
	c := newCtl(t, config.StorageSQLite)
	id := addedID(t, c.mustRun("add", "@em", "old@example.com"))

	c.mustRun("edit", id, "@mail", "new@example.com")

	out := c.mustRun("show", id)
	assert.Contains(t, out, "Code:     @mail")
	assert.Contains(t, out, "new@example.com")
}

func TestTry(t *testing.T) {
	c := newCtl(t, config.StorageSQLite)
	c.mustRun("add", "@em", "user@example.com")

	out := c.mustRun("try", "mail @em now")
	assert.Contains(t, out, `Value:  "mail user@example.comnow"`)
	assert.Contains(t, out, "Cursor: 24")
	assert.Contains(t, out, `Expanded "@em " -> "user@example.com"`)

	out = c.mustRun("try", "nothing here")
	assert.Contains(t, out, "No expansion (1 triggers loaded)")
}

func TestTryRich(t *testing.T) {
	c := newCtl(t, config.StorageFile)
	c.mustRun("add", "@em", "user@example.com")

	out := c.mustRun("try", "-rich", "mail @em now")
	assert.Contains(t, out, `Text:   "mail user@example.comnow"`)
	assert.Contains(t, out, "Caret:  24")
	assert.Contains(t, out, `Expanded "@em " -> "user@example.com"`)

	out = c.mustRun("try", "-rich", "@e m")
	assert.Contains(t, out, `Text:   "@e m"`)
	assert.Contains(t, out, "Caret:  4")
	assert.Contains(t, out, "No expansion (1 triggers loaded)")

	_, errOut, code := c.run("try", "-rich")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Usage: snippetctl try [-rich] <text>")
}

func TestEditTrimsInput(t *testing.T) {
	c := newCtl(t, config.StorageSQLite)
	id := addedID(t, c.mustRun("add", "@em", "old@example.com"))

	c.mustRun("edit", id, "  @mail\t", "\n new@example.com  ")

	out := c.mustRun("show", id)
	assert.Contains(t, out, "Code:     @mail\n")
	assert.Contains(t, out, `Trigger:  "@mail "`)
	assert.Contains(t, out, "Text:\nnew@example.com\n")
}

func TestMigrate(t *testing.T) {
	c := newCtl(t, config.StorageSQLite)
	c.mustRun("add", "@em", "user@example.com")

	out := c.mustRun("migrate", "status")
	assert.Equal(t, "Schema version 2 of 2\n", out)

	out = c.mustRun("migrate", "rollback")
	assert.Contains(t, out, "Schema version 1 of 2")
	assert.Contains(t, out, "pending 2: Index snippets by code")

	out = c.mustRun("migrate", "up")
	assert.Equal(t, "Schema version 2 of 2\n", out)

	out = c.mustRun("list")
	assert.Contains(t, out, "@em")

	_, errOut, code := c.run("migrate", "sideways")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, `unknown migrate action "sideways"`)
}

func TestMigrateRejectsFileStorage(t *testing.T) {
	c := newCtl(t, config.StorageFile)
	_, errOut, code := c.run("migrate", "status")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "sqlite storage only")
}

func TestFirstRunCreatesConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("SNIPPETD_DATA_DIR", dir)
	path := filepath.Join(dir, "conf", "config.toml")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", path, "list"}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	assert.Contains(t, stderr.String(), "Created default config at "+path)
	assert.Equal(t, "No snippets.\n", stdout.String())
	assert.FileExists(t, path)

	stderr.Reset()
	stdout.Reset()
	code = run([]string{"-config", path, "list"}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.NotContains(t, stderr.String(), "Created default config")
}

func TestShowUnknownID(t *testing.T) {
	c := newCtl(t, config.StorageSQLite)
	_, errOut, code := c.run("show", "does-not-exist")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "snippet not found")
}

func TestAddRejectsInvalidCode(t *testing.T) {
	c := newCtl(t, config.StorageSQLite)
	_, errOut, code := c.run("add", "", "text")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid snippet")
}

func TestStats(t *testing.T) {
	c := newCtl(t, config.StorageSQLite)

	out := c.mustRun("stats")
	assert.Contains(t, out, "No metrics")

	prom := "# HELP snippetd_expansions_total x\n# TYPE snippetd_expansions_total counter\nsnippetd_expansions_total 3\n"
	require.NoError(t, os.WriteFile(c.cfg.Metrics.Path, []byte(prom), 0600))
	out = c.mustRun("stats")
	assert.Equal(t, "snippetd_expansions_total 3\n", out)
}

func TestUsageErrors(t *testing.T) {
	c := newCtl(t, config.StorageSQLite)

	_, _, code := c.run()
	assert.Equal(t, 1, code)

	_, errOut, code := c.run("frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Unknown command")

	_, errOut, code = c.run("add", "@em")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Usage: snippetctl add")
}
