package types

import "time"

// BootstrapHeader travels only on the initial envelope of a session so the
// responder can mirror the handshake.
type BootstrapHeader struct {
	EphemeralKey    X25519Public    `json:"ephemeral_key"`
	IdentityKey     X25519Public    `json:"identity_key"`
	OneTimePrekeyID OneTimePrekeyID `json:"one_time_prekey_id,omitempty"`
}

// EncryptedEnvelope is the unit handed to the relay. Bootstrap is non-nil
// exactly when IsInitial is set.
type EncryptedEnvelope struct {
	SessionID  SessionID        `json:"session_id"`
	Sender     AccountID        `json:"sender"`
	Receiver   AccountID        `json:"receiver"`
	Ciphertext []byte           `json:"ciphertext"`
	Nonce      Nonce            `json:"nonce"`
	IsInitial  bool             `json:"is_initial"`
	Bootstrap  *BootstrapHeader `json:"bootstrap,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// DecryptedMessage is what the session service returns per received envelope.
// Err carries a per-message failure (authentication or stale session); the
// remaining messages are still processed.
type DecryptedMessage struct {
	SessionID SessionID `json:"session_id"`
	From      AccountID `json:"from"`
	To        AccountID `json:"to"`
	Plaintext []byte    `json:"plaintext,omitempty"`
	At        time.Time `json:"at"`
	Err       error     `json:"-"`
}

// Direction says which way a logged message travelled.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// HistoryEntry is one plaintext message in the local conversation log.
type HistoryEntry struct {
	SessionID SessionID `json:"session_id"`
	Peer      AccountID `json:"peer"`
	Direction Direction `json:"direction"`
	Body      []byte    `json:"body"`
	At        time.Time `json:"at"`
}

// NotificationKind names an advisory push event.
type NotificationKind string

const (
	NotifySessionStarted NotificationKind = "sessionStarted"
	NotifySessionEnded   NotificationKind = "sessionEnded"
	NotifyNewMessage     NotificationKind = "newMessage"
)

// Notification is an advisory "go and check" signal. Delivery is not guaranteed.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	From      AccountID        `json:"from"`
	SessionID SessionID        `json:"session_id,omitempty"`
	At        time.Time        `json:"at"`
}
