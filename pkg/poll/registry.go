package poll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Tracked is the type-erased view of a Cell that the Registry holds.
type Tracked interface {
	Name() string
	Status() Status
	Refresh(ctx context.Context) error
}

var _ Tracked = (*Cell[int])(nil)

// Registry manages a set of named cells for health reporting and forced
// refreshes. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	cells map[string]Tracked
}

// NewRegistry returns an empty registry ready for cell registration.
func NewRegistry() *Registry {
	return &Registry{cells: make(map[string]Tracked)}
}

// Register adds a cell to the registry. It returns an error if a cell with
// the same name is already registered.
func (r *Registry) Register(c Tracked) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.cells[name]; exists {
		return fmt.Errorf("cell %q already registered", name)
	}
	r.cells[name] = c
	return nil
}

// Unregister removes a cell by name. It is a no-op if the name is not found.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cells, name)
}

// Get returns the cell with the given name, or false if not found.
func (r *Registry) Get(name string) (Tracked, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cells[name]
	return c, ok
}

// List returns a sorted slice of all registered cell names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.cells))
	for name := range r.cells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllStatus returns the status of every cell, sorted by name.
func (r *Registry) AllStatus() []Status {
	r.mu.RLock()
	cells := make([]Tracked, 0, len(r.cells))
	for _, c := range r.cells {
		cells = append(cells, c)
	}
	r.mu.RUnlock()

	result := make([]Status, 0, len(cells))
	for _, c := range cells {
		result = append(result, c.Status())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// RefreshAll runs one synchronous tick on every cell in name order. Errors
// are joined; a failing cell does not stop the others.
func (r *Registry) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, name := range r.List() {
		c, ok := r.Get(name)
		if !ok {
			continue
		}
		if err := c.Refresh(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
