// Package instructions provides the compiled table of built-in instruction
// handlers.
//
//	echo value          respond with value
//	set name value      store value under name in the shared variables
//	get name            respond with the stored value, or null
//	unset name          remove a stored value
//	dump                respond with every stored value
//	status              respond with process status
//	noop                do nothing
//	fail [message]      fail with message
package instructions
