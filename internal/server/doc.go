// Package server is the relay's HTTP API.
//
// Every /v1 route requires a bearer token whose subject is the caller's
// account. The relay stores public prekeys and sealed envelopes only.
//
//	POST   /v1/keys                  publish bundle and one-time pool
//	GET    /v1/keys/:account         fetch a bundle, allocating one one-time key
//	POST   /v1/keys/otk              add one-time keys
//	DELETE /v1/keys/otk/:id          drop a one-time key
//	PUT    /v1/keys/signed           rotate the signed prekey
//	GET    /v1/keys/status           age, pool size and maintenance advice
//	POST   /v1/sessions              store a bootstrap envelope, open flags
//	GET    /v1/sessions/bootstrap    newest bootstrap for the caller (?from=)
//	GET    /v1/sessions/:id          session state
//	DELETE /v1/sessions/:id/bootstrap  consume bootstrap, mark Established
//	POST   /v1/sessions/:id/end      clear the caller's activity flag
//	POST   /v1/messages              queue an ordinary envelope
//	GET    /v1/messages              queued envelopes (?limit=)
//	POST   /v1/messages/ack          drop the first n queued envelopes
//	GET    /v1/events                server-sent notifications
//
// Errors map to 400 (validation, signature), 403, 404, 409 (duplicate
// one-time key) and 410 (stale session).
package server
