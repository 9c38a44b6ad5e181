// Package main runs the parley relay. The relay stores public prekey bundles,
// holds bootstrap envelopes until the responder fetches them, tracks each
// session's per-participant activity flags and queues sealed messages for
// their recipients. It never sees plaintext, session secrets or private keys.
//
// Commands
//
//	relay serve            run the HTTP server
//	relay token <account>  print a bearer token for <account>
//
// Configuration comes from PARLEY_* environment variables, optionally seeded
// from --env-file. PARLEY_JWT_SECRET is required; PARLEY_BACKEND selects
// memory (default), redis or mongo.
//
// HTTP API (all under /v1 require "Authorization: Bearer <token>")
//
//	GET    /v1/accounts                accounts with a published bundle
//	GET    /v1/accounts/{account}      one account's registered identity keys
//	POST   /v1/keys                    publish bundle and one-time pool
//	GET    /v1/keys/{account}          bundle plus one allocated one-time key (rate limited)
//	GET    /v1/keys/status             signed prekey age, pool size, rotate/replenish advice
//	POST   /v1/keys/otk                add one-time keys
//	DELETE /v1/keys/otk/{id}           delete one one-time key
//	PUT    /v1/keys/signed             replace the signed prekey
//	POST   /v1/sessions                store a bootstrap envelope and open the session
//	GET    /v1/sessions/bootstrap      newest bootstrap for the caller (?from=)
//	DELETE /v1/sessions/{id}/bootstrap responder consumed the bootstrap
//	GET    /v1/sessions/{id}           session state and activity flags
//	POST   /v1/sessions/{id}/end       clear the caller's activity flag
//	POST   /v1/messages                queue an ordinary envelope
//	GET    /v1/messages?limit=N        fetch queued envelopes
//	POST   /v1/messages/ack            drop the first N fetched envelopes
//	GET    /v1/events                  server-sent notifications
package main
