package client

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultStorageKey is where the anonymous identity lives when the caller
// does not pick a key.
const DefaultStorageKey = "anonymousUserId"

// IdentityManager hands out a stable anonymous identifier for this client.
// The identifier is generated once and persisted, so every later call
// returns the same value.
type IdentityManager struct {
	storage Storage

	// group serializes concurrent first-time lookups per storage key. Without
	// it two racing callers could both miss the read and persist different
	// identifiers for the same client.
	group singleflight.Group
}

// NewIdentityManager creates an identity manager backed by storage. Passing
// nil storage is allowed and yields an absent identity from every call.
func NewIdentityManager(storage Storage) *IdentityManager {
	return &IdentityManager{storage: storage}
}

// GetOrCreate returns the persisted identifier under storageKey, generating
// and persisting a fresh one on first use. When no storage is available it
// returns an empty identifier and no error; callers must tolerate that.
func (m *IdentityManager) GetOrCreate(storageKey string) (string, error) {
	if m.storage == nil {
		slog.Debug("Identity storage unavailable, continuing without identity")
		return "", nil
	}
	if storageKey == "" {
		storageKey = DefaultStorageKey
	}

	id, err, _ := m.group.Do(storageKey, func() (any, error) {
		existing, ok, err := m.storage.Get(storageKey)
		if err != nil {
			return "", fmt.Errorf("failed to read identity: %w", err)
		}
		if ok {
			return existing, nil
		}

		generated := uuid.NewString()
		if err := m.storage.Set(storageKey, generated); err != nil {
			return "", fmt.Errorf("failed to persist identity: %w", err)
		}
		return generated, nil
	})
	if err != nil {
		return "", err
	}
	return id.(string), nil
}
