// Package commands defines the parley CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init           Create the local identity and an initial prekey pool
//   - fingerprint    Print the identity fingerprint
//   - register       Publish your prekey bundle to the relay
//   - maintain       Rotate the signed prekey and top up one-time prekeys as advised
//   - start          Reuse, accept or initiate a session with a peer
//   - send           Encrypt and send a message on the session with a peer
//   - recv           Fetch and decrypt queued messages
//   - end            End your side of the session with a peer
//   - sessions       List local sessions
//   - watch          Stream relay notifications
//
// # Implementation
//
// The root command reads the client configuration, applies flag overrides
// and builds the dependency graph (stores, services, relay client) before any
// subcommand runs. Each relay-bound command runs under the configured timeout;
// watch runs until interrupted.
package commands
