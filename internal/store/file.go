package store

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"snippetd/internal/snippet"
)

//go:embed schema/snippets.schema.json
var snippetSchemaJSON []byte

const snippetSchemaName = "snippets.schema.json"

// fileVersion is written to every snippet file.
const fileVersion = 1

// idNamespace derives stable IDs for hand-written entries that lack one.
var idNamespace = uuid.MustParse("0b6e3c55-55b1-4b0e-9f0c-5c6a0d5f7a11")

var (
	compileOnce sync.Once
	fileSchema  *jsonschema.Schema
	compileErr  error
)

func snippetSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(snippetSchemaName, bytes.NewReader(snippetSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		fileSchema, compileErr = compiler.Compile(snippetSchemaName)
	})
	return fileSchema, compileErr
}

// fileDocument is the on-disk layout of a snippet file.
type fileDocument struct {
	Version  int             `json:"version" toml:"version" yaml:"version"`
	Snippets []snippet.Entry `json:"snippets" toml:"snippets" yaml:"snippets"`
}

// File stores snippets in a TOML, YAML or JSON file. The format follows
// the file extension. A missing file is an empty collection.
type File struct {
	path   string
	format string
	opts   options
	mu     sync.Mutex
	*notifier
}

// OpenFile opens the snippet file at path. The file is created on the
// first write.
func OpenFile(path string, opts ...Option) (*File, error) {
	format, err := formatFor(path)
	if err != nil {
		return nil, err
	}
	if _, err := snippetSchema(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create snippet directory: %w", err)
	}
	return &File{
		path:     path,
		format:   format,
		opts:     buildOptions(opts),
		notifier: &notifier{scope: snippet.ScopeSync},
	}, nil
}

func formatFor(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return "toml", nil
	case ".yaml", ".yml":
		return "yaml", nil
	case ".json":
		return "json", nil
	default:
		return "", fmt.Errorf("unsupported snippet file extension %q", ext)
	}
}

// Scope implements Collection.
func (f *File) Scope() string { return snippet.ScopeSync }

// Path returns the snippet file.
func (f *File) Path() string { return f.path }

// Close implements Collection.
func (f *File) Close() error { return nil }

// Get implements Collection.
func (f *File) Get(ctx context.Context) ([]snippet.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	return doc.Snippets, nil
}

// Find implements Collection.
func (f *File) Find(ctx context.Context, id string) (snippet.Entry, error) {
	entries, err := f.Get(ctx)
	if err != nil {
		return snippet.Entry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return snippet.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Save implements Collection.
func (f *File) Save(ctx context.Context, e snippet.Entry) (bool, error) {
	var updated bool
	err := f.update(ctx, func(doc *fileDocument) error {
		for _, cur := range doc.Snippets {
			if e.ID != "" && cur.ID == e.ID && e.CreatedAt.IsZero() {
				e.CreatedAt = cur.CreatedAt
			}
		}
		prepared, err := prepare(e, f.opts.now())
		if err != nil {
			return err
		}
		doc.Snippets, updated = snippet.Upsert(doc.Snippets, prepared)
		return nil
	})
	return updated, err
}

// Delete implements Collection.
func (f *File) Delete(ctx context.Context, id string) error {
	return f.update(ctx, func(doc *fileDocument) error {
		var removed bool
		doc.Snippets, removed = snippet.Remove(doc.Snippets, id)
		if !removed {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

// Watch implements Collection.
func (f *File) Watch(ctx context.Context) error {
	return watchFiles(ctx, []string{f.path}, f.opts, f.notifier)
}

// update applies fn to the current document and writes the result while
// holding the file lock.
func (f *File) update(ctx context.Context, fn func(doc *fileDocument) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	unlock, err := lockFile(f.path)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	if err := f.write(doc); err != nil {
		return err
	}

	f.notify()
	return nil
}

func (f *File) read() (*fileDocument, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &fileDocument{Version: fileVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snippet file: %w", err)
	}
	return decodeDocument(f.format, data)
}

func (f *File) write(doc *fileDocument) error {
	doc.Version = fileVersion
	data, err := encodeDocument(f.format, doc)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snippet file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snippet file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snippet file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace snippet file: %w", err)
	}
	return nil
}

// decodeDocument parses data and checks it against the snippet schema.
// Entries without an ID get one derived from their position and code.
func decodeDocument(format string, data []byte) (*fileDocument, error) {
	doc := &fileDocument{}
	var err error
	switch format {
	case "toml":
		_, err = toml.Decode(string(data), doc)
	case "yaml":
		err = yaml.Unmarshal(data, doc)
	default:
		if len(bytes.TrimSpace(data)) > 0 {
			err = json.Unmarshal(data, doc)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrInvalidFile, strings.ToUpper(format), err)
	}

	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	for i := range doc.Snippets {
		if doc.Snippets[i].ID == "" {
			seed := fmt.Sprintf("%d:%s", i, doc.Snippets[i].Code)
			doc.Snippets[i].ID = uuid.NewSHA1(idNamespace, []byte(seed)).String()
		}
	}
	return doc, nil
}

func validateDocument(doc *fileDocument) error {
	schema, err := snippetSchema()
	if err != nil {
		return err
	}

	generic := *doc
	if generic.Snippets == nil {
		generic.Snippets = []snippet.Entry{}
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("marshal snippet document: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("unmarshal snippet document: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	return nil
}

func encodeDocument(format string, doc *fileDocument) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case "toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(doc)
		data = buf.Bytes()
	case "yaml":
		data, err = yaml.Marshal(doc)
	default:
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("encode snippet file: %w", err)
	}
	return data, nil
}
