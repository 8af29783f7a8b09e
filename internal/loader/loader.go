// Package loader reads curated knowledge files and loads them into the
// knowledge space. Reloading a file is the documented way to update
// curated content: an entry with a name already present retires the
// old rows (marks them superseded, excluded from ranking) and appends
// the fresh version. Nothing is ever deleted.
package loader

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/koopa0/dash/internal/knowledge"
)

// File is one curated YAML document. All sections are optional.
type File struct {
	Tables  []knowledge.TableMetadata `yaml:"tables"`
	Rules   []knowledge.BusinessRule  `yaml:"rules"`
	Queries []knowledge.QueryPattern  `yaml:"queries"`
}

// content is the common shape of every curated kind.
type content interface {
	EntryName() string
	Render() string
	Metadata() map[string]string
}

// Entries flattens the file into loadable content in document order.
func (f *File) Entries() []content {
	var out []content
	for _, t := range f.Tables {
		out = append(out, t)
	}
	for _, r := range f.Rules {
		out = append(out, r)
	}
	for _, q := range f.Queries {
		out = append(out, q)
	}
	return out
}

// store is the write surface the loader needs from a knowledge space.
type store interface {
	Add(ctx context.Context, e knowledge.Entry) (knowledge.Entry, error)
	Retire(ctx context.Context, name string) (int64, error)
}

// Result summarizes one load run.
type Result struct {
	Loaded  int
	Retired int64
	Files   []string
}

// Loader loads curated files into the knowledge space.
type Loader struct {
	store  store
	logger *slog.Logger
}

// New creates a Loader writing into the given space.
func New(store store, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, logger: logger}
}

// LoadFile parses one curated YAML file and loads its entries.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading curated file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	res := &Result{Files: []string{path}}
	for _, c := range file.Entries() {
		if err := l.loadOne(ctx, c, res); err != nil {
			return nil, fmt.Errorf("loading %q from %s: %w", c.EntryName(), filepath.Base(path), err)
		}
	}

	l.logger.Info("loaded curated file",
		"path", path, "entries", res.Loaded, "retired", res.Retired)
	return res, nil
}

// LoadDir loads every .yaml and .yml file under dir, in lexical order
// so reload runs are deterministic.
func (l *Loader) LoadDir(ctx context.Context, dir string) (*Result, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no curated files under %s", dir)
	}
	sort.Strings(paths)

	total := &Result{}
	for _, path := range paths {
		res, err := l.LoadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		total.Loaded += res.Loaded
		total.Retired += res.Retired
		total.Files = append(total.Files, path)
	}
	return total, nil
}

func (l *Loader) loadOne(ctx context.Context, c content, res *Result) error {
	name := c.EntryName()
	// Entry names are "<kind>_<slug>"; an empty slug means the source
	// item had no name.
	if _, slug, ok := strings.Cut(name, "_"); !ok || slug == "" {
		return fmt.Errorf("%w: unnamed curated entry", knowledge.ErrInvalidEntry)
	}

	retired, err := l.store.Retire(ctx, name)
	if err != nil {
		return fmt.Errorf("retiring previous versions: %w", err)
	}
	res.Retired += retired

	if _, err := l.store.Add(ctx, knowledge.Entry{
		Name:     name,
		Content:  c.Render(),
		Metadata: c.Metadata(),
	}); err != nil {
		return err
	}
	res.Loaded++
	return nil
}
