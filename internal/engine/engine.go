//
//
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/radio-control/commandd/internal/engine"

// DefaultCompactThreshold is the number of processed head entries tolerated before compaction.
const DefaultCompactThreshold = 1024

// Stats is a snapshot of engine counters.
type Stats struct {
	Queued   int    `json:"queued"`
	Executed uint64 `json:"executed"`
	Failed   uint64 `json:"failed"`
	Unknown  uint64 `json:"unknown"`
	Running  bool   `json:"running"`
}

// Engine drains an ordered instruction queue one instruction at a time.
//
// running is true iff a drain step is posted or executing; at most one drain
// is active per engine.
type Engine struct {
	mu       sync.Mutex
	queue    []*Instruction
	next     int
	running  bool
	executed uint64
	failed   uint64
	unknown  uint64

	registry         *Registry
	env              *Env
	sched            Scheduler
	logger           *slog.Logger
	tracer           trace.Tracer
	observers        []Observer
	compactThreshold int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithObserver adds an observer notified after each instruction.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithCompactThreshold sets how many processed entries may accumulate before compaction.
func WithCompactThreshold(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.compactThreshold = n
		}
	}
}

// New creates an engine that drains on sched, resolving handlers from registry
// and sharing env across every invocation.
func New(sched Scheduler, registry *Registry, env *Env, opts ...Option) *Engine {
	e := &Engine{
		registry:         registry,
		env:              env,
		sched:            sched,
		logger:           slog.Default(),
		tracer:           otel.Tracer(tracerName),
		compactThreshold: DefaultCompactThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.env == nil {
		e.env = NewEnv(e.logger)
	}
	e.logger = e.logger.With("component", "engine")
	return e
}

// Registry returns the handler table.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Env returns the shared execution environment.
func (e *Engine) Env() *Env {
	return e.env
}

// Append moves instructions, in order, onto the tail of the queue and starts
// a drain if none is active. It reports false and does nothing for an empty batch.
func (e *Engine) Append(instructions []*Instruction) bool {
	if len(instructions) == 0 {
		return false
	}

	e.mu.Lock()
	for _, ins := range instructions {
		if ins != nil {
			e.queue = append(e.queue, ins)
		}
	}
	e.mu.Unlock()

	e.Run()
	return true
}

// Run starts a drain unless one is already active.
func (e *Engine) Run() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.schedule()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Queued:   len(e.queue) - e.next,
		Executed: e.executed,
		Failed:   e.failed,
		Unknown:  e.unknown,
		Running:  e.running,
	}
}

// schedule posts the next drain step. If the scheduler refuses, the drain ends
// and queued instructions wait for the next Run.
func (e *Engine) schedule() {
	if err := e.sched.Post(e.step); err != nil {
		e.mu.Lock()
		e.running = false
		pending := len(e.queue) - e.next
		e.mu.Unlock()
		e.logger.Warn("drain stopped, scheduler unavailable", "pending", pending, "error", err)
	}
}

// step executes one instruction and posts the next step.
func (e *Engine) step() {
	e.mu.Lock()
	if e.next >= len(e.queue) {
		clear(e.queue)
		e.queue = e.queue[:0]
		e.next = 0
		e.running = false
		e.mu.Unlock()
		return
	}
	ins := e.queue[e.next]
	e.queue[e.next] = nil
	e.next++
	e.compactLocked()
	e.mu.Unlock()

	e.execute(ins)
	e.schedule()
}

// compactLocked drops processed entries once they exceed the threshold.
func (e *Engine) compactLocked() {
	if e.next < e.compactThreshold {
		return
	}
	remaining := copy(e.queue, e.queue[e.next:])
	clear(e.queue[remaining:])
	e.queue = e.queue[:remaining]
	e.next = 0
}

// execute resolves and runs one instruction. Unknown names are skipped and the
// drain continues.
func (e *Engine) execute(ins *Instruction) {
	start := time.Now()

	handler, ok := e.registry.Lookup(ins.Name)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownInstruction, ins.Name)
		e.logger.Warn("unknown instruction", "instruction", ins.Name, "submission", ins.SubmissionID)
		if ins.Responder != nil {
			if rerr := ins.Respond(map[string]any{"error": err.Error()}); rerr != nil {
				e.logger.Debug("unknown instruction response dropped", "instruction", ins.Name, "error", rerr)
			}
		}
		e.finish(Result{
			Name:         ins.Name,
			SubmissionID: ins.SubmissionID,
			Outcome:      OutcomeUnknown,
			Duration:     time.Since(start),
			Err:          err,
		})
		return
	}

	ctx, span := e.tracer.Start(context.Background(), "engine.instruction",
		trace.WithAttributes(
			attribute.String("instruction.name", ins.Name),
			attribute.String("submission.id", ins.SubmissionID),
			attribute.Int("instruction.args", len(ins.Args)),
		),
	)
	err := e.invoke(ctx, handler, ins)
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
		if herr, ok := err.(*HandlerError); ok && herr.Panic {
			outcome = OutcomePanic
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("instruction failed", "instruction", ins.Name, "submission", ins.SubmissionID, "error", err)
	}
	span.End()

	e.finish(Result{
		Name:         ins.Name,
		SubmissionID: ins.SubmissionID,
		Outcome:      outcome,
		Duration:     time.Since(start),
		Err:          err,
	})
}

// invoke calls the handler, converting returned errors and panics into *HandlerError.
func (e *Engine) invoke(ctx context.Context, h Handler, ins *Instruction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{Name: ins.Name, Panic: true, Err: fmt.Errorf("%v", r)}
		}
	}()

	if herr := h.Handle(ctx, e.env, ins); herr != nil {
		return &HandlerError{Name: ins.Name, Err: herr}
	}
	return nil
}

func (e *Engine) finish(r Result) {
	e.mu.Lock()
	switch r.Outcome {
	case OutcomeOK:
		e.executed++
	case OutcomeUnknown:
		e.unknown++
	default:
		e.executed++
		e.failed++
	}
	e.mu.Unlock()

	for _, o := range e.observers {
		o.InstructionDone(r)
	}
}
