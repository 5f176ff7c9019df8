package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abhisek/learnintake/internal/assessment"
)

// ErrVersionConflict is returned by Save when the stored session changed
// since it was loaded.
var ErrVersionConflict = errors.New("session version conflict")

// SessionStore persists assessment sessions keyed by id.
//
// Load never reports "not found": an unknown id yields a fresh session with
// Version 0. Save is an atomic full replace guarded by the session Version;
// on success it increments s.Version in place.
type SessionStore interface {
	Load(ctx context.Context, id string) (*assessment.Session, error)
	Save(ctx context.Context, s *assessment.Session) error
	Exists(ctx context.Context, id string) (bool, error)
}

// clock is swapped out in tests.
var clock = func() time.Time { return time.Now().UTC() }

// MemorySessions is an in-process SessionStore. Sessions are deep-copied in
// both directions so callers never share state with the store.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]*assessment.Session
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]*assessment.Session)}
}

func (m *MemorySessions) Load(_ context.Context, id string) (*assessment.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s.Clone(), nil
	}
	return assessment.NewSession(id, clock()), nil
}

func (m *MemorySessions) Save(_ context.Context, s *assessment.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current int64
	if prev, ok := m.sessions[s.ID]; ok {
		current = prev.Version
	}
	if current != s.Version {
		return ErrVersionConflict
	}
	s.Version++
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemorySessions) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok, nil
}
