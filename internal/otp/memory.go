package otp

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps challenges in process; it does not work across replicas.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]memoryEntry
	now        func() time.Time
}

type memoryEntry struct {
	challenge Challenge
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		challenges: make(map[string]memoryEntry),
		now:        time.Now,
	}
}

func (s *MemoryStore) Set(_ context.Context, key string, challenge *Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.cleanupExpiredLocked(now)
	s.challenges[key] = memoryEntry{
		challenge: *challenge,
		expiresAt: now.Add(ttl),
	}
	return nil
}

func (s *MemoryStore) ReserveAttempt(_ context.Context, key string, limit int) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupExpiredLocked(s.now())

	entry, ok := s.challenges[key]
	if !ok {
		return nil, ErrExpired
	}
	if entry.challenge.Attempts >= limit {
		return nil, ErrTooManyAttempts
	}
	entry.challenge.Attempts++
	s.challenges[key] = entry
	challenge := entry.challenge
	return &challenge, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.challenges, key)
	return nil
}

func (s *MemoryStore) cleanupExpiredLocked(now time.Time) {
	for key, entry := range s.challenges {
		if now.After(entry.expiresAt) {
			delete(s.challenges, key)
		}
	}
}

func (s *MemoryStore) Close() error {
	return nil
}
