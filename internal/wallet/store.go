package wallet

import (
	"context"
	"sync"
	"time"
)

// SelectionStore persists pending wallet selections with a TTL. Get returns
// (nil, nil) when no unexpired selection exists for the channel.
type SelectionStore interface {
	Get(ctx context.Context, channelID string) (*PendingSelection, error)
	Put(ctx context.Context, channelID string, pending *PendingSelection, ttl time.Duration) error
	Delete(ctx context.Context, channelID string) error
}

type memoryEntry struct {
	pending   *PendingSelection
	expiresAt time.Time
	timer     *time.Timer
}

// MemoryStore is an in-process SelectionStore. Selections do not survive a
// restart, which matches their short lifetime.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an in-memory selection store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, channelID string) (*PendingSelection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[channelID]
	if !ok {
		return nil, nil
	}
	if s.now().After(entry.expiresAt) {
		s.removeLocked(channelID)
		return nil, nil
	}
	return entry.pending, nil
}

func (s *MemoryStore) Put(_ context.Context, channelID string, pending *PendingSelection, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(channelID)

	entry := memoryEntry{
		pending:   pending,
		expiresAt: s.now().Add(ttl),
	}
	// Each entry evicts itself when the TTL runs out, so an idle channel
	// does not hold its selection until the next store access.
	entry.timer = time.AfterFunc(ttl, func() {
		s.evict(channelID, entry.expiresAt)
	})
	s.entries[channelID] = entry

	s.purgeLocked()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(channelID)
	return nil
}

// evict drops the entry armed at Put time unless it was replaced since.
func (s *MemoryStore) evict(channelID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[channelID]; ok && entry.expiresAt.Equal(expiresAt) {
		s.removeLocked(channelID)
	}
}

// removeLocked deletes an entry and disarms its timer. Called with the
// lock held.
func (s *MemoryStore) removeLocked(channelID string) {
	if entry, ok := s.entries[channelID]; ok && entry.timer != nil {
		entry.timer.Stop()
	}
	delete(s.entries, channelID)
}

// purgeLocked drops expired entries. Called with the lock held.
func (s *MemoryStore) purgeLocked() {
	now := s.now()
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			s.removeLocked(id)
		}
	}
}
