// Package relay provides an HTTP implementation of the domain.RelayClient
// interface used by parley.
//
// The relay is a store-and-forward service for public prekey bundles,
// bootstrap envelopes and ordinary sealed messages. It never holds session
// secrets.
//
// All requests are JSON over HTTP, carry the account's bearer token and
// accept a context for cancellation. Non-2xx statuses come back as domain
// errors (ErrNotFound, ErrStaleSession, ErrSignature, ...) wrapped with the
// method and path; anything unmapped keeps the HTTP status text.
//
// Listen consumes the relay's server-sent event stream.
package relay
