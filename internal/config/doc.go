// Package config implements configuration loading for the command daemon.
//
// Values are layered: built-in defaults, an optional YAML file, COMMANDD_*
// environment variables, then command-line flags applied by the caller.
// Validate is run on the merged result.
package config
