// Package auth protects the admin surface with HS256 bearer tokens.
//
// Tokens carry a subject and a list of scopes. The admin routes require the
// "admin" scope; /healthz is always open.
package auth
