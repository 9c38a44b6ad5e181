// Package session establishes, uses and tears down sessions with peers.
//
// Establishment follows derive, seal, hand off: the handshake yields a
// secret, the secure channel seals the bootstrap greeting, and only then is
// the envelope handed to the relay and the session persisted. The responder
// marks a session Established once the handshake mirrors, whether or not the
// greeting opened. Ordinary messages reuse the stored secret.
package session
