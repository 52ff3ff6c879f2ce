// Package audit implements the instruction audit trail.
//
// Every executed instruction is appended as one JSON line carrying the
// submission id, instruction name, outcome, duration and error text. The file
// is rotated by size and age.
package audit
