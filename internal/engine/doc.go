// Package engine implements the sequential instruction engine.
//
// Instructions are appended to an ordered queue and drained one at a time on
// a serial Loop. Every drain step is posted to the loop as its own task, so
// other posted work runs between instructions and no two instructions from
// the same engine ever run concurrently. Handlers are resolved by name from a
// copy-on-write Registry at execution time.
package engine
