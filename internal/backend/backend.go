// Package backend groups the relay's storage contracts. Implementations live
// in the memory, redis and mongo subpackages.
package backend

import "parley/internal/domain"

// Backend is everything the relay server needs from storage.
type Backend interface {
	domain.PrekeyStore
	domain.BootstrapTransport
	domain.SessionRegistry
	domain.MessageQueue
}

// CheckBatch rejects a one-time key batch that repeats an id.
func CheckBatch(keys []domain.OneTimePrekeyPublic) error {
	seen := make(map[domain.OneTimePrekeyID]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k.ID]; dup {
			return domain.ErrDuplicateOneTimeKey
		}
		seen[k.ID] = struct{}{}
	}
	return nil
}
