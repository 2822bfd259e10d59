// Package store persists exported session state between process runs.
//
// DESIGN: States are stored as their canonical JSON so both backends return
// independent copies and a stored session can be inspected by hand.
//   - MemoryStore: TTL'd map with a background cleanup goroutine
//   - SQLiteStore: single-file database (modernc.org/sqlite, no CGO), WAL mode
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mhismail3/tron-sub010/internal/contextmgr"
)

// ErrNotFound is returned by Load for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Defaults.
const (
	DefaultTTL             = 24 * time.Hour
	DefaultCleanupInterval = 5 * time.Minute
)

// Store saves and loads session state by session id.
type Store interface {
	Save(ctx context.Context, state contextmgr.State) error
	Load(ctx context.Context, sessionID string) (contextmgr.State, error)
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

func encode(state contextmgr.State) ([]byte, error) {
	if state.SessionID == "" {
		return nil, fmt.Errorf("store: session id is required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("store: encode session %s: %w", state.SessionID, err)
	}
	return data, nil
}

func decode(sessionID string, data []byte) (contextmgr.State, error) {
	var state contextmgr.State
	if err := json.Unmarshal(data, &state); err != nil {
		return contextmgr.State{}, fmt.Errorf("store: decode session %s: %w", sessionID, err)
	}
	return state, nil
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore keeps states in memory. Entries expire ttl after their last save.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string]entry
	ttl      time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopped  bool
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore returns a store whose entries live for ttl (0 for no expiry).
// Expired entries are swept every cleanupInterval.
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	s := &MemoryStore{
		data:     make(map[string]entry),
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	go s.cleanup(cleanupInterval)
	return s
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, state contextmgr.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("store: closed")
	}
	e := entry{value: data}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.data[state.SessionID] = e
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, sessionID string) (contextmgr.State, error) {
	if err := ctx.Err(); err != nil {
		return contextmgr.State{}, err
	}
	s.mu.RLock()
	e, ok := s.data[sessionID]
	s.mu.RUnlock()

	if !ok || s.expired(e) {
		return contextmgr.State{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return decode(sessionID, e.value)
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.data {
		if !s.expired(e) {
			n++
		}
	}
	return n
}

// Close stops the cleanup goroutine and drops all entries.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
		s.data = nil
	}
	return nil
}

func (s *MemoryStore) expired(e entry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}

func (s *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	for key, e := range s.data {
		if s.expired(e) {
			delete(s.data, key)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
