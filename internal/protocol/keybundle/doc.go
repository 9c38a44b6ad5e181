// Package keybundle generates and maintains an account's key material: the
// identity, the signed prekey and the pool of one-time prekeys. It only
// returns values; persisting them is the caller's job.
package keybundle
