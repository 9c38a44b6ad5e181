package lifecycle

import "parley/internal/domain"

// Record is the relay-side state of one session: who takes part and whether
// each participant still considers it active. It holds no key material.
type Record struct {
	id          domain.SessionID
	initiator   domain.AccountID
	responder   domain.AccountID
	initActive  bool
	respActive  bool
	established bool
}

// NewRecord opens a session in PendingEstablishment with both flags set.
func NewRecord(id domain.SessionID, initiator, responder domain.AccountID) (*Record, error) {
	switch {
	case id == "":
		return nil, domain.Invalid("session id", "empty")
	case initiator == "" || responder == "":
		return nil, domain.Invalid("participants", "empty account id")
	case initiator == responder:
		return nil, domain.Invalid("participants", "initiator and responder are the same account")
	}
	return &Record{id: id, initiator: initiator, responder: responder, initActive: true, respActive: true}, nil
}

// ID returns the session id.
func (r *Record) ID() domain.SessionID { return r.id }

// Establish moves a pending session to Established. Repeating it is a no-op.
func (r *Record) Establish() error {
	if r.Terminated() {
		return domain.ErrStaleSession
	}
	r.established = true
	return nil
}

// SetActive writes only the participant's own flag and reports whether both
// flags are now false.
func (r *Record) SetActive(account domain.AccountID, active bool) (bool, error) {
	switch account {
	case r.initiator:
		r.initActive = active
	case r.responder:
		r.respActive = active
	default:
		return false, domain.ErrForbidden
	}
	return r.Terminated(), nil
}

// End clears the participant's flag. The peer stays in its current state.
func (r *Record) End(account domain.AccountID) (bool, error) {
	return r.SetActive(account, false)
}

// Terminated reports whether both participants have ended the session.
func (r *Record) Terminated() bool { return !r.initActive && !r.respActive }

// State is the session-wide state.
func (r *Record) State() domain.SessionState {
	switch {
	case r.Terminated():
		return domain.Terminated
	case r.established:
		return domain.Established
	default:
		return domain.PendingEstablishment
	}
}

// StateFor is the state as seen by one participant: Terminated once that
// participant has ended, otherwise the session-wide state.
func (r *Record) StateFor(account domain.AccountID) domain.SessionState {
	switch account {
	case r.initiator:
		if !r.initActive {
			return domain.Terminated
		}
	case r.responder:
		if !r.respActive {
			return domain.Terminated
		}
	default:
		return domain.NoSession
	}
	return r.State()
}

// Info is a snapshot of the record.
func (r *Record) Info() domain.SessionInfo {
	return domain.SessionInfo{
		ID:              r.id,
		Initiator:       r.initiator,
		Responder:       r.responder,
		InitiatorActive: r.initActive,
		ResponderActive: r.respActive,
		State:           r.State(),
	}
}

// Restore rebuilds a record from a stored snapshot.
func Restore(info domain.SessionInfo) *Record {
	return &Record{
		id:          info.ID,
		initiator:   info.Initiator,
		responder:   info.Responder,
		initActive:  info.InitiatorActive,
		respActive:  info.ResponderActive,
		established: info.State == domain.Established,
	}
}

// Reuse reports whether re-selecting a peer in state s keeps the current
// session. Only Established sessions are kept; anything else restarts at
// NoSession.
func Reuse(s domain.SessionState) bool { return s == domain.Established }
