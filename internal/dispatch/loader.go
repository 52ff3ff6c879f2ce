//
//
package dispatch

import (
	"errors"
	"fmt"
	"sort"

	"github.com/radio-control/commandd/internal/engine"
)

// ErrNotFound is returned by a Loader that has no handler for a name.
var ErrNotFound = errors.New("handler not found")

// Loader resolves an instruction name to the latest version of its handler.
// Implementations must not cache across calls when their source can change.
type Loader interface {
	Load(name string) (engine.Handler, error)
}

// Lister is implemented by loaders that can enumerate the names they resolve.
type Lister interface {
	Names() ([]string, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(name string) (engine.Handler, error)

func (f LoaderFunc) Load(name string) (engine.Handler, error) { return f(name) }

// Chain tries each loader in order and returns the first handler found.
// A loader error other than ErrNotFound stops the search.
type Chain []Loader

func (c Chain) Load(name string) (engine.Handler, error) {
	for _, l := range c {
		if l == nil {
			continue
		}
		h, err := l.Load(name)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Names merges the names of every member that is a Lister, sorted and
// without duplicates.
func (c Chain) Names() ([]string, error) {
	seen := map[string]bool{}
	for _, l := range c {
		lister, ok := l.(Lister)
		if !ok {
			continue
		}
		names, err := lister.Names()
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
