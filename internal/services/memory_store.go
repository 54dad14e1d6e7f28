package services

import (
	"context"
	"sync"
	"time"

	"github.com/ssimba1203/gather-map-clean/internal/database"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
)

type memoryEntry struct {
	gathering *database.Gathering
	expiresAt time.Time
}

// MemoryStore keeps gatherings in process memory with a sliding TTL
type MemoryStore struct {
	entries map[string]*memoryEntry
	mutex   sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a store whose entries expire ttl after their last save
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*database.Gathering, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, exists := s.entries[id]
	if !exists || s.expired(entry) {
		return nil, database.ErrGatheringNotFound
	}
	return entry.gathering.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, g *database.Gathering) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.entries[g.ID] = &memoryEntry{
		gathering: g.Clone(),
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) expired(entry *memoryEntry) bool {
	return s.ttl > 0 && s.now().After(entry.expiresAt)
}

// CleanupExpired removes expired gatherings and returns how many were dropped
func (s *MemoryStore) CleanupExpired() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of stored gatherings, expired ones included until cleanup
func (s *MemoryStore) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.entries)
}

// StartCleanupRoutine removes expired gatherings every interval until ctx is done
func (s *MemoryStore) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.CleanupExpired(); n > 0 {
					telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
						"removed":   n,
						"operation": "cleanup_gatherings",
						"service":   "memory_store",
					}).Debug("Removed expired gatherings")
				}
			}
		}
	}()
}
