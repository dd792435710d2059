// Package category resolves category paths such as
// "Default Category/Men/Shirts" to category ids, creating the categories
// that do not exist yet.
package category

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

// TreeRootID is the parent of every root category.
const TreeRootID = 1

// PathDelimiter separates category names inside a path.
const PathDelimiter = "/"

// ErrEmptyName is reported for paths with an empty segment.
var ErrEmptyName = errors.New("empty category name")

// Category is one persisted category.
type Category struct {
	ID       int
	ParentID int
	Name     string
}

// Store reads and creates categories.
type Store interface {
	Categories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, parentID int, name string) (int, error)
}

// Processor implements core.CategoryProcessor. The category tree is loaded
// once and kept in memory; created categories are added to it.
type Processor struct {
	store  Store
	logger *slog.Logger

	mu     sync.Mutex
	loaded bool
	byPath map[string]int
}

// NewProcessor returns a processor over store.
func NewProcessor(store Store, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: store, logger: logger}
}

// UpsertCategories resolves every path in paths. Paths that cannot be
// created are returned as failures; only a failure to read the tree is an
// error.
func (p *Processor) UpsertCategories(ctx context.Context, paths, separator string) ([]int, []core.CategoryFailure, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.load(ctx); err != nil {
		return nil, nil, err
	}

	var ids []int
	var failures []core.CategoryFailure
	for _, path := range core.SplitValues(paths, separator) {
		id, err := p.upsertPath(ctx, path)
		if err != nil {
			failures = append(failures, core.CategoryFailure{Path: path, Err: err})
			continue
		}
		ids = append(ids, id)
	}
	return ids, failures, nil
}

func (p *Processor) load(ctx context.Context) error {
	if p.loaded {
		return nil
	}
	cats, err := p.store.Categories(ctx)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	p.byPath = indexPaths(cats)
	p.loaded = true
	return nil
}

// indexPaths builds the name path of every category reachable from the
// tree root.
func indexPaths(cats []Category) map[string]int {
	children := make(map[int][]Category)
	for _, c := range cats {
		children[c.ParentID] = append(children[c.ParentID], c)
	}

	out := make(map[string]int, len(cats))
	var walk func(parentID int, prefix string)
	walk = func(parentID int, prefix string) {
		for _, c := range children[parentID] {
			path := c.Name
			if prefix != "" {
				path = prefix + PathDelimiter + c.Name
			}
			if _, dup := out[path]; dup {
				continue
			}
			out[path] = c.ID
			walk(c.ID, path)
		}
	}
	walk(TreeRootID, "")
	return out
}

// upsertPath walks path from the root, creating missing segments.
func (p *Processor) upsertPath(ctx context.Context, path string) (int, error) {
	if id, ok := p.byPath[path]; ok {
		return id, nil
	}

	parentID := TreeRootID
	prefix := ""
	for _, name := range strings.Split(path, PathDelimiter) {
		name = strings.TrimSpace(name)
		if name == "" {
			return 0, ErrEmptyName
		}
		if prefix != "" {
			prefix += PathDelimiter
		}
		prefix += name

		if id, ok := p.byPath[prefix]; ok {
			parentID = id
			continue
		}
		id, err := p.store.CreateCategory(ctx, parentID, name)
		if err != nil {
			return 0, fmt.Errorf("create %q: %w", prefix, err)
		}
		p.logger.Debug("category created", "path", prefix, "id", id)
		p.byPath[prefix] = id
		parentID = id
	}
	return parentID, nil
}
