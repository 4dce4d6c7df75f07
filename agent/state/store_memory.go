package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps sessions in-process. It round-trips sessions through
// JSON so callers never share pointers with the store, and enforces the
// same version compare-and-set as the Redis stores. Suited to local runs
// and tests; a restart loses everything.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	versions map[string]int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, sessionID)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &sess, nil
}

func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return ErrNilSession
	}
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.versions[s.SessionID]; exists && current != s.Version {
		return fmt.Errorf("%w: session %s is at version %d, caller has %d",
			ErrVersionConflict, s.SessionID, current, s.Version)
	}

	s.Version++
	raw, err := json.Marshal(s)
	if err != nil {
		s.Version--
		return fmt.Errorf("encode session %s: %w", s.SessionID, err)
	}
	m.sessions[s.SessionID] = raw
	m.versions[s.SessionID] = s.Version
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	delete(m.versions, sessionID)
	return nil
}
