package types

import "time"

// SessionState is a participant's view of a session.
type SessionState int

const (
	NoSession SessionState = iota
	PendingEstablishment
	Established
	Terminated
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case NoSession:
		return "no-session"
	case PendingEstablishment:
		return "pending"
	case Established:
		return "established"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Role records which side of the handshake the local party played.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// Session is the local endpoint's record of a session. Secret never leaves
// the two endpoints.
type Session struct {
	ID              SessionID       `json:"id"`
	Local           AccountID       `json:"local"`
	Peer            AccountID       `json:"peer"`
	Role            Role            `json:"role"`
	State           SessionState    `json:"state"`
	Secret          SharedSecret    `json:"secret"`
	OneTimePrekeyID OneTimePrekeyID `json:"one_time_prekey_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SessionInfo is the relay's view of a session: participants and activity
// flags, no key material.
type SessionInfo struct {
	ID              SessionID    `json:"id"`
	Initiator       AccountID    `json:"initiator"`
	Responder       AccountID    `json:"responder"`
	InitiatorActive bool         `json:"initiator_active"`
	ResponderActive bool         `json:"responder_active"`
	State           SessionState `json:"state"`
}

// Has reports whether account participates in the session.
func (i SessionInfo) Has(account AccountID) bool {
	return account == i.Initiator || account == i.Responder
}

// ActiveFor reports account's activity flag.
func (i SessionInfo) ActiveFor(account AccountID) bool {
	if account == i.Initiator {
		return i.InitiatorActive
	}
	return account == i.Responder && i.ResponderActive
}

// PeerOf returns the other participant.
func (i SessionInfo) PeerOf(account AccountID) AccountID {
	if account == i.Initiator {
		return i.Responder
	}
	return i.Initiator
}
