package types

// AccountID identifies an account registered with the relay.
type AccountID string

// String returns the string form of the account id.
func (a AccountID) String() string { return string(a) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// OneTimePrekeyID uniquely identifies a one-time prekey within an account.
type OneTimePrekeyID string

// String returns the string form of the identifier.
func (id OneTimePrekeyID) String() string { return string(id) }

// SessionID is unique per pair of participants and establishment attempt.
type SessionID string

// String returns the string form of the session identifier.
func (id SessionID) String() string { return string(id) }
