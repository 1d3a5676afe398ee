package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/homestock/homestock/internal/suggest"
)

type scopeKey struct {
	tenant suggest.TenantID
	field  suggest.FieldType
}

// MemoryStore implements suggest.Store in process memory. Entries are lost
// on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[scopeKey]map[string]*suggest.Entry
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		scopes: make(map[scopeKey]map[string]*suggest.Entry),
		now:    o.now,
	}
}

// Upsert increments or inserts an entry under the write lock.
func (m *MemoryStore) Upsert(ctx context.Context, tenant suggest.TenantID, field suggest.FieldType, value string) (suggest.Entry, error) {
	if err := ctx.Err(); err != nil {
		return suggest.Entry{}, unavailable("upsert", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopeKey{tenant, field}
	scope, ok := m.scopes[key]
	if !ok {
		scope = make(map[string]*suggest.Entry)
		m.scopes[key] = scope
	}

	now := m.now().UTC()
	if e, ok := scope[value]; ok {
		e.Frequency++
		e.LastUsed = now
		return *e, nil
	}

	e := &suggest.Entry{
		ID:        uuid.NewString(),
		Tenant:    tenant,
		FieldType: field,
		Value:     value,
		Frequency: 1,
		LastUsed:  now,
		CreatedAt: now,
	}
	scope[value] = e
	return *e, nil
}

// List returns copies of every entry in the scope.
func (m *MemoryStore) List(ctx context.Context, tenant suggest.TenantID, field suggest.FieldType) ([]suggest.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	scope := m.scopes[scopeKey{tenant, field}]
	entries := make([]suggest.Entry, 0, len(scope))
	for _, e := range scope {
		entries = append(entries, *e)
	}
	return entries, nil
}

// Delete removes one entry. Missing entries are ignored.
func (m *MemoryStore) Delete(ctx context.Context, tenant suggest.TenantID, field suggest.FieldType, value string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("delete", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopeKey{tenant, field}
	if scope, ok := m.scopes[key]; ok {
		delete(scope, value)
		if len(scope) == 0 {
			delete(m.scopes, key)
		}
	}
	return nil
}

// Count returns the number of entries in the scope.
func (m *MemoryStore) Count(ctx context.Context, tenant suggest.TenantID, field suggest.FieldType) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("count", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.scopes[scopeKey{tenant, field}]), nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
