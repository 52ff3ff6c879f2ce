//
//
package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/radio-control/commandd/internal/engine"
	"github.com/radio-control/commandd/internal/server"
)

var (
	ErrMissingInstructions = errors.New("instructions is missing")
	ErrInvalidInstruction  = errors.New("invalid instruction")
	ErrEngineRejected      = errors.New("engine rejected the batch")
)

// submission is the request body: {"instructions":[{"name":...,"args":[...]}]}.
type submission struct {
	Instructions json.RawMessage `json:"instructions"`
}

type wireInstruction struct {
	Name *string         `json:"name"`
	Args json.RawMessage `json:"args"`
}

// Dispatcher feeds submissions to an engine.
type Dispatcher struct {
	engine *engine.Engine
	loader Loader
	logger *slog.Logger
}

// New creates a dispatcher resolving handlers through loader.
func New(e *engine.Engine, loader Loader, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		engine: e,
		loader: loader,
		logger: logger.With("component", "dispatch"),
	}
}

// HandleJSONRequest submits an accepted request. Failures are answered
// through the request's responder with {"error": message}.
func (d *Dispatcher) HandleJSONRequest(req *server.JSONRequest) {
	if err := d.Submit(req.ID, req.Payload, req.Responder); err != nil {
		d.logger.Warn("submission rejected", "submission", req.ID, "error", err)
		if rerr := req.Responder.Respond(errorBody(err)); rerr != nil {
			d.logger.Debug("rejection response dropped", "submission", req.ID, "error", rerr)
		}
	}
}

// Submit decodes payload, resolves and registers its handlers, and appends
// the batch. Nothing is appended when any instruction fails to decode or
// resolve. An empty id is replaced with a fresh one.
func (d *Dispatcher) Submit(id string, payload json.RawMessage, responder engine.Responder) error {
	if id == "" {
		id = uuid.NewString()
	}

	batch, err := decode(payload)
	if err != nil {
		return err
	}

	handlers := make(map[string]engine.Handler, len(batch))
	for _, ins := range batch {
		if _, ok := handlers[ins.Name]; ok {
			continue
		}
		h, err := d.loader.Load(ins.Name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: %s", engine.ErrUnknownInstruction, ins.Name)
			}
			return err
		}
		handlers[ins.Name] = h
	}

	registry := d.engine.Registry()
	for _, h := range handlers {
		registry.Register(h)
	}

	for _, ins := range batch {
		ins.SubmissionID = id
		ins.Responder = responder
	}
	if !d.engine.Append(batch) {
		return ErrEngineRejected
	}

	d.logger.Debug("submission queued", "submission", id, "instructions", len(batch))
	return nil
}

// Available lists the instruction names the loader can resolve right now.
// It is empty when the loader cannot enumerate its names.
func (d *Dispatcher) Available() ([]string, error) {
	lister, ok := d.loader.(Lister)
	if !ok {
		return []string{}, nil
	}
	return lister.Names()
}

// ReloadResult lists the outcome of a Reload.
type ReloadResult struct {
	Reloaded []string `json:"reloaded"`
	Removed  []string `json:"removed"`
}

// Reload re-resolves every registered handler and publishes the new table in
// one step. Names the loader no longer knows are removed. Submissions that
// register handlers while a reload runs wait for it and land on the new table.
func (d *Dispatcher) Reload() (ReloadResult, error) {
	result := ReloadResult{Reloaded: []string{}, Removed: []string{}}
	err := d.engine.Registry().Update(func(cur map[string]engine.Handler) ([]engine.Handler, error) {
		names := make([]string, 0, len(cur))
		for name := range cur {
			names = append(names, name)
		}
		sort.Strings(names)

		handlers := make([]engine.Handler, 0, len(names))
		for _, name := range names {
			h, err := d.loader.Load(name)
			switch {
			case err == nil:
				handlers = append(handlers, h)
				result.Reloaded = append(result.Reloaded, name)
			case errors.Is(err, ErrNotFound):
				result.Removed = append(result.Removed, name)
			default:
				return nil, fmt.Errorf("reload %s: %w", name, err)
			}
		}
		return handlers, nil
	})
	if err != nil {
		return ReloadResult{}, err
	}

	d.logger.Info("handlers reloaded", "reloaded", len(result.Reloaded), "removed", result.Removed)
	return result, nil
}

// decode parses the instruction list. A missing, null, empty or non-array
// list is ErrMissingInstructions.
func decode(payload json.RawMessage) ([]*engine.Instruction, error) {
	var sub submission
	if err := json.Unmarshal(payload, &sub); err != nil {
		return nil, ErrMissingInstructions
	}

	var raw []json.RawMessage
	if len(sub.Instructions) == 0 || json.Unmarshal(sub.Instructions, &raw) != nil || len(raw) == 0 {
		return nil, ErrMissingInstructions
	}

	batch := make([]*engine.Instruction, 0, len(raw))
	for i, item := range raw {
		var w wireInstruction
		if err := json.Unmarshal(item, &w); err != nil || w.Name == nil || *w.Name == "" {
			return nil, fmt.Errorf("%w at index %d: name must be a non-empty string", ErrInvalidInstruction, i)
		}

		args := []any{}
		if trimmed := bytes.TrimSpace(w.Args); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			if err := json.Unmarshal(trimmed, &args); err != nil {
				return nil, fmt.Errorf("%w at index %d: args must be an array", ErrInvalidInstruction, i)
			}
		}
		batch = append(batch, &engine.Instruction{Name: *w.Name, Args: args})
	}
	return batch, nil
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
