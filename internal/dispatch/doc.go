// Package dispatch connects accepted command requests to the instruction engine.
//
// For each submission the dispatcher decodes the instruction list, resolves
// every named handler through a Loader, registers the resolved handlers
// (last registration wins), attaches the request's responder and submission
// id to each instruction, and appends the batch to the engine in order.
package dispatch
