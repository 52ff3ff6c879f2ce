//
//
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrUnknownInstruction indicates no handler is registered for an instruction name.
var ErrUnknownInstruction = errors.New("unknown instruction")

// ErrNoResponder is returned when an instruction carries no responder.
var ErrNoResponder = errors.New("instruction has no responder")

// Responder answers the request an instruction arrived with.
type Responder interface {
	Respond(v any) error
}

// Instruction is a named, argument-bearing unit of work.
type Instruction struct {
	Name string `json:"name"`
	Args []any  `json:"args"`

	// SubmissionID correlates instructions of one client submission.
	SubmissionID string `json:"-"`

	// Responder may be nil when the instruction was not submitted over a request.
	Responder Responder `json:"-"`
}

// Respond answers the originating request through the instruction's responder.
func (i *Instruction) Respond(v any) error {
	if i.Responder == nil {
		return ErrNoResponder
	}
	return i.Responder.Respond(v)
}

// Arg returns the argument at index or nil when absent.
func (i *Instruction) Arg(index int) any {
	if index < 0 || index >= len(i.Args) {
		return nil
	}
	return i.Args[index]
}

// StringArg returns the argument at index when it is a string.
func (i *Instruction) StringArg(index int) (string, bool) {
	s, ok := i.Arg(index).(string)
	return s, ok
}

// Env is the execution environment shared by every handler invocation.
// Handlers run one at a time, so Vars needs no locking from handler code.
type Env struct {
	Logger *slog.Logger
	Vars   map[string]any

	// Status reports process status for introspection instructions. May be nil.
	Status func() any
}

// NewEnv creates an environment with an empty variable table.
func NewEnv(logger *slog.Logger) *Env {
	return &Env{
		Logger: logger,
		Vars:   make(map[string]any),
	}
}

// Handler executes one instruction name.
type Handler interface {
	Name() string
	Handle(ctx context.Context, env *Env, ins *Instruction) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env *Env, ins *Instruction) error

type funcHandler struct {
	name string
	fn   HandlerFunc
}

// NewHandler creates a Handler named name backed by fn.
func NewHandler(name string, fn HandlerFunc) Handler {
	return &funcHandler{name: name, fn: fn}
}

func (h *funcHandler) Name() string { return h.name }

func (h *funcHandler) Handle(ctx context.Context, env *Env, ins *Instruction) error {
	return h.fn(ctx, env, ins)
}

// HandlerError wraps an error returned or panicked by a handler.
type HandlerError struct {
	Name  string
	Panic bool
	Err   error
}

func (e *HandlerError) Error() string {
	if e.Panic {
		return fmt.Sprintf("instruction %s panicked: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("instruction %s failed: %v", e.Name, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Outcome classifies how an instruction finished.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeError   Outcome = "error"
	OutcomePanic   Outcome = "panic"
	OutcomeUnknown Outcome = "unknown"
)

// Result describes one executed instruction.
type Result struct {
	Name         string
	SubmissionID string
	Outcome      Outcome
	Duration     time.Duration
	Err          error
}

// Observer is notified after every instruction, on the loop goroutine.
type Observer interface {
	InstructionDone(r Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r Result)

func (f ObserverFunc) InstructionDone(r Result) { f(r) }
