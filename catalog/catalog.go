// Package catalog holds the static list of filters a booth session can pick from.
//
// A Catalog is read-only for its consumers. The only writer is Reload, which
// swaps the whole list at once, so a Filter handed out earlier stays valid.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a filter id is not in the catalog.
var ErrNotFound = errors.New("catalog: filter not found")

// Filter describes one decorative overlay.
type Filter struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
	OverlayRef   string `yaml:"overlay" json:"overlay"`
	ThumbnailRef string `yaml:"thumbnail,omitempty" json:"thumbnail,omitempty"`
}

// Thumbnail returns the thumbnail reference, falling back to the overlay.
func (f Filter) Thumbnail() string {
	if f.ThumbnailRef != "" {
		return f.ThumbnailRef
	}
	return f.OverlayRef
}

// Catalog is an ordered, id-unique list of filters.
type Catalog struct {
	mu      sync.RWMutex
	filters []Filter
}

// New builds a catalog after validating the filters.
func New(filters []Filter) (*Catalog, error) {
	if err := validate(filters); err != nil {
		return nil, err
	}
	c := &Catalog{}
	c.filters = append([]Filter(nil), filters...)
	return c, nil
}

// Default returns the catalog shipped with the booth.
func Default() *Catalog {
	c, err := New(defaultFilters)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a YAML catalog file of the form:
//
//	filters:
//	  - id: golden
//	    name: Golden Vibes
//	    overlay: https://example.com/golden.png
func Load(path string) (*Catalog, error) {
	filters, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return New(filters)
}

// All returns the filters in catalog order.
func (c *Catalog) All() []Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Filter(nil), c.filters...)
}

// Get returns the filter with the given id.
func (c *Catalog) Get(id string) (Filter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.filters {
		if f.ID == id {
			return f, nil
		}
	}
	return Filter{}, fmt.Errorf("%w: %q", ErrNotFound, id)
}

// Len returns the number of filters.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filters)
}

// Reload replaces the catalog contents with the filters in path. On error
// the current contents are kept.
func (c *Catalog) Reload(path string) error {
	filters, err := readFile(path)
	if err != nil {
		return err
	}
	if err := validate(filters); err != nil {
		return err
	}
	c.mu.Lock()
	c.filters = filters
	c.mu.Unlock()
	return nil
}

type catalogFile struct {
	Filters []Filter `yaml:"filters"`
}

func readFile(path string) ([]Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return f.Filters, nil
}

func validate(filters []Filter) error {
	if len(filters) == 0 {
		return errors.New("catalog: no filters")
	}
	seen := make(map[string]struct{}, len(filters))
	for i, f := range filters {
		id := strings.TrimSpace(f.ID)
		if id == "" {
			return fmt.Errorf("catalog: filter %d has no id", i)
		}
		if strings.TrimSpace(f.OverlayRef) == "" {
			return fmt.Errorf("catalog: filter %q has no overlay", id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("catalog: duplicate filter id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
