// Package scripts loads instruction handlers from Lua files.
//
// A handler named foo lives in <dir>/foo.lua. The file is read again on
// every Load, so edits take effect for the next submission that names it.
// Each invocation runs in a fresh Lua state; the script must define a
// global function handle(...) that receives the instruction arguments.
//
// Scripts can call:
//
//	respond(value)      answer the request; returns true, or false and a message
//	get(name)           read a shared variable
//	set(name, value)    write a shared variable
//	log(message)        write an info log line
//
// Lua tables with keys 1..n convert to JSON arrays, other tables to objects.
package scripts
