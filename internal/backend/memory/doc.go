// Package memory is the in-process relay backend. Session flags live in a
// lifecycle.Registry; purging a session drops its bootstrap record.
package memory
