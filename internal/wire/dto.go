package wire

import "time"

// OneTimePrekey is the public half of a one-time prekey.
type OneTimePrekey struct {
	ID  string `json:"id" validate:"required,max=128"`
	Pub string `json:"pub" validate:"required,base64"`
}

// Bundle is a public key bundle. OneTimePrekey is present only on fetch and
// only when the relay could allocate one.
type Bundle struct {
	Account               string         `json:"account,omitempty" validate:"omitempty,account"`
	IdentityKey           string         `json:"identity_key" validate:"required,base64"`
	SigningKey            string         `json:"signing_key" validate:"required,base64"`
	SignedPrekey          string         `json:"signed_prekey" validate:"required,base64"`
	SignedPrekeySignature string         `json:"signed_prekey_signature" validate:"required,base64"`
	OneTimePrekey         *OneTimePrekey `json:"one_time_prekey,omitempty"`
}

// Peer is an account's registered identity.
type Peer struct {
	Account     string `json:"account" validate:"required,account"`
	IdentityKey string `json:"identity_key" validate:"required,base64"`
	SigningKey  string `json:"signing_key" validate:"required,base64"`
}

// Accounts is the relay's directory listing.
type Accounts struct {
	Accounts []string `json:"accounts"`
}

// PublishRequest replaces an account's bundle and one-time pool.
type PublishRequest struct {
	Bundle         Bundle          `json:"bundle"`
	OneTimePrekeys []OneTimePrekey `json:"one_time_prekeys" validate:"dive"`
}

// OneTimePrekeys appends to the pool.
type OneTimePrekeys struct {
	Keys []OneTimePrekey `json:"keys" validate:"required,min=1,dive"`
}

// SignedPrekey replaces the current signed prekey.
type SignedPrekey struct {
	Pub       string `json:"pub" validate:"required,base64"`
	Signature string `json:"signature" validate:"required,base64"`
}

// Status is the relay's prekey status plus maintenance advice.
type Status struct {
	SignedPrekeyUpdated time.Time `json:"signed_prekey_updated"`
	OneTimePrekeys      int       `json:"one_time_prekeys"`
	Rotate              bool      `json:"rotate"`
	Replenish           bool      `json:"replenish"`
}

// Envelope is an encrypted message. The bootstrap fields are set exactly when
// IsInitial is true.
type Envelope struct {
	SessionID       string    `json:"session_id" validate:"required,max=256"`
	Sender          string    `json:"sender" validate:"required,account"`
	Receiver        string    `json:"receiver" validate:"required,account"`
	Ciphertext      string    `json:"ciphertext" validate:"required,base64"`
	Nonce           string    `json:"nonce" validate:"required,base64"`
	IsInitial       bool      `json:"is_initial"`
	EphemeralKey    string    `json:"ephemeral_key,omitempty" validate:"omitempty,base64"`
	IdentityKey     string    `json:"identity_key,omitempty" validate:"omitempty,base64"`
	OneTimePrekeyID string    `json:"one_time_prekey_id,omitempty" validate:"omitempty,max=128"`
	CreatedAt       time.Time `json:"created_at"`
}

// Messages is a batch of queued envelopes.
type Messages struct {
	Messages []Envelope `json:"messages"`
}

// Count acknowledges the first Count queued messages.
type Count struct {
	Count int `json:"count" validate:"min=0"`
}

// SessionInfo is the relay's view of a session.
type SessionInfo struct {
	ID              string `json:"id"`
	Initiator       string `json:"initiator"`
	Responder       string `json:"responder"`
	InitiatorActive bool   `json:"initiator_active"`
	ResponderActive bool   `json:"responder_active"`
	State           string `json:"state"`
}

// EndResult reports whether ending purged the session.
type EndResult struct {
	Terminated bool `json:"terminated"`
}

// Notification is one server-sent event payload.
type Notification struct {
	Kind      string    `json:"kind"`
	From      string    `json:"from"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Error string `json:"error"`
}
