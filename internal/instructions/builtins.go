//
//
package instructions

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/radio-control/commandd/internal/dispatch"
	"github.com/radio-control/commandd/internal/engine"
)

// ErrRequested is the error returned by the fail instruction.
var ErrRequested = errors.New("requested failure")

// Builtin is a compiled instruction handler with a description.
type Builtin struct {
	name        string
	description string
	fn          engine.HandlerFunc
}

func (b *Builtin) Name() string { return b.name }

// Description returns a human-readable description.
func (b *Builtin) Description() string { return b.description }

func (b *Builtin) Handle(ctx context.Context, env *engine.Env, ins *engine.Instruction) error {
	return b.fn(ctx, env, ins)
}

// Table is a fixed set of builtins. It implements dispatch.Loader.
type Table struct {
	handlers map[string]*Builtin
}

var _ dispatch.Loader = (*Table)(nil)

// Builtins returns the table of built-in instructions.
func Builtins() *Table {
	t := &Table{handlers: make(map[string]*Builtin)}
	for _, b := range []*Builtin{
		{"echo", "Respond with the first argument", echo},
		{"set", "Store a value in the shared variables", set},
		{"get", "Respond with a stored value", get},
		{"unset", "Remove a stored value", unset},
		{"dump", "Respond with every stored value", dump},
		{"status", "Respond with process status", status},
		{"noop", "Do nothing", func(context.Context, *engine.Env, *engine.Instruction) error { return nil }},
		{"fail", "Fail with the given message", fail},
	} {
		t.handlers[b.name] = b
	}
	return t
}

// Load returns the builtin named name.
func (t *Table) Load(name string) (engine.Handler, error) {
	b, ok := t.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrNotFound, name)
	}
	return b, nil
}

// Names returns the builtin names sorted.
func (t *Table) Names() ([]string, error) {
	names := make([]string, 0, len(t.handlers))
	for name := range t.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Handlers returns every builtin sorted by name.
func (t *Table) Handlers() []engine.Handler {
	names, _ := t.Names()
	out := make([]engine.Handler, 0, len(names))
	for _, name := range names {
		out = append(out, t.handlers[name])
	}
	return out
}

func echo(_ context.Context, _ *engine.Env, ins *engine.Instruction) error {
	return ins.Respond(ins.Arg(0))
}

func set(_ context.Context, env *engine.Env, ins *engine.Instruction) error {
	name, ok := ins.StringArg(0)
	if !ok {
		return fmt.Errorf("set: first argument must be a variable name")
	}
	env.Vars[name] = ins.Arg(1)
	return nil
}

func get(_ context.Context, env *engine.Env, ins *engine.Instruction) error {
	name, ok := ins.StringArg(0)
	if !ok {
		return fmt.Errorf("get: first argument must be a variable name")
	}
	return ins.Respond(env.Vars[name])
}

func unset(_ context.Context, env *engine.Env, ins *engine.Instruction) error {
	name, ok := ins.StringArg(0)
	if !ok {
		return fmt.Errorf("unset: first argument must be a variable name")
	}
	delete(env.Vars, name)
	return nil
}

func dump(_ context.Context, env *engine.Env, ins *engine.Instruction) error {
	return ins.Respond(maps.Clone(env.Vars))
}

func status(_ context.Context, env *engine.Env, ins *engine.Instruction) error {
	if env.Status == nil {
		return ins.Respond(map[string]any{})
	}
	return ins.Respond(env.Status())
}

func fail(_ context.Context, _ *engine.Env, ins *engine.Instruction) error {
	if msg, ok := ins.StringArg(0); ok && msg != "" {
		return fmt.Errorf("%w: %s", ErrRequested, msg)
	}
	return ErrRequested
}
