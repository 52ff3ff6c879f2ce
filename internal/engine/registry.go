//
//
package engine

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Registry maps instruction names to handlers. Readers see immutable
// snapshots; every write builds a new table and publishes it atomically.
type Registry struct {
	mu    sync.Mutex // serializes writers
	table atomic.Pointer[map[string]Handler]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := make(map[string]Handler)
	r.table.Store(&empty)
	return r
}

// Register adds h under h.Name(). The last registration for a name wins.
func (r *Registry) Register(h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.copyLocked(1)
	next[h.Name()] = h
	r.table.Store(&next)
}

// Lookup returns the handler registered for name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := (*r.table.Load())[name]
	return h, ok
}

// Remove drops the handler registered for name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.copyLocked(0)
	delete(next, name)
	r.table.Store(&next)
}

// Replace swaps the whole table for handlers in one publish.
func (r *Registry) Replace(handlers []Handler) {
	next := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		if h != nil {
			next[h.Name()] = h
		}
	}

	r.mu.Lock()
	r.table.Store(&next)
	r.mu.Unlock()
}

// Update builds the next table from the current one while holding the
// writer lock, so no Register or Remove lands between reading the table and
// publishing the result. cur must not be modified. When fn fails the table
// is left untouched.
func (r *Registry) Update(fn func(cur map[string]Handler) ([]Handler, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	handlers, err := fn(*r.table.Load())
	if err != nil {
		return err
	}
	next := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		if h != nil {
			next[h.Name()] = h
		}
	}
	r.table.Store(&next)
	return nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	table := *r.table.Load()
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	return len(*r.table.Load())
}

func (r *Registry) copyLocked(extra int) map[string]Handler {
	cur := *r.table.Load()
	next := make(map[string]Handler, len(cur)+extra)
	for k, v := range cur {
		next[k] = v
	}
	return next
}
