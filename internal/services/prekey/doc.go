// Package prekey manages signed prekeys and one-time prekeys for X3DH bootstrap.
//
// It keeps private halves in the local store, publishes the public bundle to
// the relay and acts on the relay's rotate/replenish advice.
package prekey
