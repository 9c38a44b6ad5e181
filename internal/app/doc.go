// Package app wires application dependencies for the two binaries.
//
// NewWire builds the client's file stores, relay client and services from
// Config. NewRelay connects the configured backend and assembles the relay
// server around it.
package app
