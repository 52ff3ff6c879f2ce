//
//
package scripts

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/radio-control/commandd/internal/dispatch"
	"github.com/radio-control/commandd/internal/engine"
)

// Extension is the file extension of instruction scripts.
const Extension = ".lua"

// Dir resolves instruction names to scripts in one directory.
type Dir struct {
	path   string
	logger *slog.Logger
}

var (
	_ dispatch.Loader = (*Dir)(nil)
	_ dispatch.Lister = (*Dir)(nil)
)

// NewDir creates a loader for path. An empty path resolves nothing.
func NewDir(path string, logger *slog.Logger) *Dir {
	return &Dir{path: path, logger: logger.With("component", "scripts")}
}

// Load reads and compiles <dir>/<name>.lua. Names that cannot be a file in
// the directory resolve to dispatch.ErrNotFound.
func (d *Dir) Load(name string) (engine.Handler, error) {
	if d.path == "" || !validName(name) {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrNotFound, name)
	}

	file := filepath.Join(d.path, name+Extension)
	src, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", dispatch.ErrNotFound, name)
		}
		return nil, fmt.Errorf("read script %s: %w", file, err)
	}

	s := &Script{
		name:   name,
		chunk:  "@" + file,
		source: string(src),
		logger: d.logger,
	}
	if err := s.compile(); err != nil {
		return nil, err
	}
	d.logger.Debug("script loaded", "instruction", name, "file", file)
	return s, nil
}

// Names lists the instruction names available in the directory.
func (d *Dir) Names() ([]string, error) {
	if d.path == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		if name := strings.TrimSuffix(e.Name(), Extension); validName(name) {
			names = append(names, name)
		}
	}
	return names, nil
}

func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return true
}

// compile checks the script for syntax errors without running it.
func (s *Script) compile() error {
	l := lua.NewState()
	if err := lua.LoadBuffer(l, s.source, s.chunk, ""); err != nil {
		return fmt.Errorf("compile script %s: %w", s.name, err)
	}
	return nil
}
