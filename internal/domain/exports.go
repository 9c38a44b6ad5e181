package domain

import (
	interfaces "parley/internal/domain/interfaces"
	types "parley/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	AccountID           = types.AccountID
	Fingerprint         = types.Fingerprint
	OneTimePrekeyID     = types.OneTimePrekeyID
	SessionID           = types.SessionID
	X25519Public        = types.X25519Public
	X25519Private       = types.X25519Private
	Ed25519Public       = types.Ed25519Public
	Ed25519Private      = types.Ed25519Private
	SharedSecret        = types.SharedSecret
	Nonce               = types.Nonce
	IdentityKeyPair     = types.IdentityKeyPair
	SignedPrekeyPair    = types.SignedPrekeyPair
	SignedPrekeyPublic  = types.SignedPrekeyPublic
	OneTimePrekeyPair   = types.OneTimePrekeyPair
	OneTimePrekeyPublic = types.OneTimePrekeyPublic
	PrivateBundle       = types.PrivateBundle
	PublicBundle        = types.PublicBundle
	PrekeyStatus        = types.PrekeyStatus
	BootstrapHeader     = types.BootstrapHeader
	EncryptedEnvelope   = types.EncryptedEnvelope
	DecryptedMessage    = types.DecryptedMessage
	NotificationKind    = types.NotificationKind
	Notification        = types.Notification
	SessionState        = types.SessionState
	Role                = types.Role
	Session             = types.Session
	SessionInfo         = types.SessionInfo
	PeerIdentity        = types.PeerIdentity
	Direction           = types.Direction
	HistoryEntry        = types.HistoryEntry
)

// Re-exported constants.
const (
	KeySize       = types.KeySize
	SignatureSize = types.SignatureSize
	NonceSize     = types.NonceSize

	NoSession            = types.NoSession
	PendingEstablishment = types.PendingEstablishment
	Established          = types.Established
	Terminated           = types.Terminated

	RoleInitiator = types.RoleInitiator
	RoleResponder = types.RoleResponder

	NotifySessionStarted = types.NotifySessionStarted
	NotifySessionEnded   = types.NotifySessionEnded
	NotifyNewMessage     = types.NotifyNewMessage

	DirectionIn  = types.DirectionIn
	DirectionOut = types.DirectionOut
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityStore       = interfaces.IdentityStore
	LocalPrekeyStore    = interfaces.LocalPrekeyStore
	SessionStore        = interfaces.SessionStore
	HistoryStore        = interfaces.HistoryStore
	PrekeyStore         = interfaces.PrekeyStore
	BootstrapTransport  = interfaces.BootstrapTransport
	SessionRegistry     = interfaces.SessionRegistry
	MessageQueue        = interfaces.MessageQueue
	NotificationChannel = interfaces.NotificationChannel
	RelayClient         = interfaces.RelayClient
	PrekeyAdvice        = interfaces.PrekeyAdvice
	IdentityService     = interfaces.IdentityService
	PrekeyService       = interfaces.PrekeyService
	MaintenanceReport   = interfaces.MaintenanceReport
	SessionService      = interfaces.SessionService
	SelectResult        = interfaces.SelectResult
	AcceptResult        = interfaces.AcceptResult
)
