package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/abhisek/learnintake/internal/assessment"
)

// ErrConcurrentUpdate is returned by Update when the session kept changing
// underneath every retry.
var ErrConcurrentUpdate = errors.New("session is being updated concurrently")

// DefaultMaxConflictRetries bounds how often Update reruns after a version
// conflict.
const DefaultMaxConflictRetries = 3

// KeyedMutex hands out one mutex per key. Entries are dropped once no
// goroutine holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu      sync.Mutex
	holders int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires the mutex for key and returns its release function.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.holders++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.holders--
		if e.holders == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len reports how many keys are currently tracked.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// Mutation transforms a freshly loaded session in place. It returns false
// to skip the write.
type Mutation func(ctx context.Context, s *assessment.Session) (save bool, err error)

// Updater serializes load-mutate-save cycles per session id. The KeyedMutex
// covers callers in this process; the store's version check covers other
// processes sharing the same backend. A conflicting write reloads fresh
// state and reruns the mutation.
type Updater struct {
	Sessions   SessionStore
	Locks      *KeyedMutex
	MaxRetries int
}

func NewUpdater(sessions SessionStore) *Updater {
	return &Updater{Sessions: sessions, Locks: NewKeyedMutex(), MaxRetries: DefaultMaxConflictRetries}
}

// Update runs fn against the current state of session id and persists the
// result. It returns the session as stored (or as loaded when fn skipped
// the write).
func (u *Updater) Update(ctx context.Context, id string, fn Mutation) (*assessment.Session, error) {
	unlock := u.Locks.Lock(id)
	defer unlock()

	for attempt := 0; ; attempt++ {
		s, err := u.Sessions.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		save, err := fn(ctx, s)
		if err != nil {
			return nil, err
		}
		if !save {
			return s, nil
		}
		err = u.Sessions.Save(ctx, s)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		if attempt >= u.MaxRetries {
			return nil, fmt.Errorf("%w: %s", ErrConcurrentUpdate, id)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}
