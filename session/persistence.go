package session

import (
	"context"
	"errors"
	"sync"
)

// ErrPersistenceUnavailable wraps backend failures from a [Persistence].
var ErrPersistenceUnavailable = errors.New("session persistence unavailable")

// Persistence is the durable key/value storage behind a [Store].
//
// Save must write both entries or neither. Clear removes both entries and is not an
// error when they are already absent.
type Persistence interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, rec Record) error
	Clear(ctx context.Context) error
}

// MemoryPersistence is an in-process [Persistence]. It does not survive restarts
// and is meant for tests and ephemeral clients.
type MemoryPersistence struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemoryPersistence returns an empty [MemoryPersistence].
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{entries: make(map[string]string, 2)}
}

func (m *MemoryPersistence) Load(context.Context) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Record{Token: m.entries[TokenKey], User: m.entries[UserKey]}, nil
}

func (m *MemoryPersistence) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[TokenKey] = rec.Token
	m.entries[UserKey] = rec.User
	return nil
}

func (m *MemoryPersistence) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, TokenKey)
	delete(m.entries, UserKey)
	return nil
}

// Put writes a single raw entry, bypassing the pair invariant. It exists so callers
// can seed the storage with data written by an older or foreign client.
func (m *MemoryPersistence) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == "" {
		delete(m.entries, key)
		return
	}
	m.entries[key] = value
}

// Get returns a single raw entry.
func (m *MemoryPersistence) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}
