//
//
package scripts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/Shopify/go-lua"

	"github.com/radio-control/commandd/internal/engine"
)

// ErrNoHandleFunction is returned when a script does not define handle.
var ErrNoHandleFunction = errors.New("script does not define a handle function")

// Script is an instruction handler backed by Lua source.
type Script struct {
	name   string
	chunk  string
	source string
	logger *slog.Logger
}

func (s *Script) Name() string { return s.name }

// Description returns the script's chunk name.
func (s *Script) Description() string { return "Lua script " + s.chunk[1:] }

// Handle runs the script in a fresh state and calls handle with the
// instruction arguments.
func (s *Script) Handle(_ context.Context, env *engine.Env, ins *engine.Instruction) error {
	l := lua.NewState()
	lua.OpenLibraries(l)
	s.registerAPI(l, env, ins)

	if err := lua.LoadBuffer(l, s.source, s.chunk, ""); err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	l.Global("handle")
	if !l.IsFunction(-1) {
		return ErrNoHandleFunction
	}
	for i, arg := range ins.Args {
		if err := pushValue(l, arg); err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
	}
	if err := l.ProtectedCall(len(ins.Args), 0, 0); err != nil {
		return fmt.Errorf("handle: %w", err)
	}
	return nil
}

func (s *Script) registerAPI(l *lua.State, env *engine.Env, ins *engine.Instruction) {
	l.Register("respond", func(l *lua.State) int {
		v, err := toValue(l, 1)
		if err == nil {
			err = ins.Respond(v)
		}
		if err != nil {
			l.PushBoolean(false)
			l.PushString(err.Error())
			return 2
		}
		l.PushBoolean(true)
		return 1
	})
	l.Register("get", func(l *lua.State) int {
		if err := pushValue(l, env.Vars[lua.CheckString(l, 1)]); err != nil {
			lua.Errorf(l, "get: %s", err.Error())
		}
		return 1
	})
	l.Register("set", func(l *lua.State) int {
		key := lua.CheckString(l, 1)
		v, err := toValue(l, 2)
		if err != nil {
			lua.Errorf(l, "set %s: %s", key, err.Error())
		}
		env.Vars[key] = v
		return 0
	})
	l.Register("log", func(l *lua.State) int {
		msg := lua.CheckString(l, 1)
		logger := env.Logger
		if logger == nil {
			logger = s.logger
		}
		logger.Info(msg, "instruction", ins.Name, "submission", ins.SubmissionID)
		return 0
	})
}

// MaxDepth is the deepest nesting of tables or arrays converted between Go
// and Lua.
const MaxDepth = 32

var (
	// ErrTooDeep is returned for values nested deeper than MaxDepth.
	ErrTooDeep = fmt.Errorf("value nested deeper than %d levels", MaxDepth)
	// ErrCyclicTable is returned for a Lua table that contains itself.
	ErrCyclicTable = errors.New("cyclic table")
	errStackFull   = errors.New("lua stack overflow")
)

// pushValue pushes a JSON-shaped Go value.
func pushValue(l *lua.State, v any) error {
	return pushDepth(l, v, 0)
}

func pushDepth(l *lua.State, v any, depth int) error {
	if !l.CheckStack(2) {
		return errStackFull
	}
	switch v := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(v)
	case string:
		l.PushString(v)
	case float64:
		l.PushNumber(v)
	case int:
		l.PushInteger(v)
	case []any:
		if depth >= MaxDepth {
			return ErrTooDeep
		}
		l.NewTable()
		for i, item := range v {
			if err := pushDepth(l, item, depth+1); err != nil {
				l.Pop(1)
				return err
			}
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		if depth >= MaxDepth {
			return ErrTooDeep
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		l.NewTable()
		for _, k := range keys {
			if err := pushDepth(l, v[k], depth+1); err != nil {
				l.Pop(1)
				return err
			}
			l.SetField(-2, k)
		}
	default:
		l.PushString(fmt.Sprint(v))
	}
	return nil
}

// toValue converts the Lua value at index to a JSON-shaped Go value.
func toValue(l *lua.State, index int) (any, error) {
	c := converter{l: l, open: map[any]bool{}}
	return c.value(index, 0)
}

// converter tracks the tables currently being converted to detect cycles.
type converter struct {
	l    *lua.State
	open map[any]bool
}

func (c *converter) value(index, depth int) (any, error) {
	l := c.l
	switch l.TypeOf(index) {
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s, nil
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return normalizeNumber(n), nil
	case lua.TypeBoolean:
		return l.ToBoolean(index), nil
	case lua.TypeTable:
		if depth >= MaxDepth {
			return nil, ErrTooDeep
		}
		id := l.ToValue(index)
		if c.open[id] {
			return nil, ErrCyclicTable
		}
		c.open[id] = true
		defer delete(c.open, id)
		return c.table(index, depth)
	default:
		return nil, nil
	}
}

func (c *converter) table(index, depth int) (any, error) {
	l := c.l
	index = l.AbsIndex(index)
	if !l.CheckStack(3) {
		return nil, errStackFull
	}

	isArray := true
	maxIndex, count := 0, 0
	l.PushNil()
	for l.Next(index) {
		if isArray {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if i, ok := l.ToInteger(-2); ok && i > 0 {
				count++
				if i > maxIndex {
					maxIndex = i
				}
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		out := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			v, err := c.value(-1, depth+1)
			l.Pop(1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	out := map[string]any{}
	l.PushNil()
	for l.Next(index) {
		// Only string keys survive. ToString on a number key would
		// rewrite it in place and break Next.
		if l.TypeOf(-2) == lua.TypeString {
			key, _ := l.ToString(-2)
			v, err := c.value(-1, depth+1)
			if err != nil {
				l.Pop(2)
				return nil, err
			}
			out[key] = v
		}
		l.Pop(1)
	}
	return out, nil
}

func normalizeNumber(n float64) any {
	if math.Mod(n, 1) == 0 && math.Abs(n) < 1<<53 {
		return int(n)
	}
	return n
}
