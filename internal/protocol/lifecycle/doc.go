// Package lifecycle models a session's progress between two participants:
//
//	NoSession → PendingEstablishment → Established → Terminated
//
// Each participant owns one activity flag and only ever writes its own.
// Ending a session clears the caller's flag; the session is Terminated and
// purged only once both flags are false, so the peer may keep sending until
// it ends independently. Re-selecting an Established peer keeps the session;
// after Terminated a new one starts from NoSession with a fresh id.
package lifecycle
