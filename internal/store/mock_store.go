// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu         sync.RWMutex
	logins     []LoginRecord
	principals map[string]*PrincipalRecord // keyed by principal text
	closed     bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		principals: make(map[string]*PrincipalRecord),
	}
}

// RecordLogin stores a login record and updates the principal summary.
func (m *MockStore) RecordLogin(ctx context.Context, r *LoginRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	m.logins = append(m.logins, *r)

	if r.Outcome != OutcomeSuccess || r.Principal == "" {
		return nil
	}
	if p, ok := m.principals[r.Principal]; ok {
		p.LastLogin = r.Timestamp
		p.LoginCount++
		return nil
	}
	m.principals[r.Principal] = &PrincipalRecord{
		Principal:  r.Principal,
		Scheme:     r.Scheme,
		Address:    r.Address,
		FirstSeen:  r.Timestamp,
		LastLogin:  r.Timestamp,
		LoginCount: 1,
	}
	return nil
}

// ListLogins returns matching records newest first.
func (m *MockStore) ListLogins(ctx context.Context, f LoginFilter) ([]LoginRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []LoginRecord
	for _, r := range m.logins {
		if f.Since != nil && r.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Address != nil && r.Address != *f.Address {
			continue
		}
		if f.Principal != nil && r.Principal != *f.Principal {
			continue
		}
		if f.Outcome != nil && r.Outcome != *f.Outcome {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit := normalizeLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetPrincipal returns a copy of the principal summary.
func (m *MockStore) GetPrincipal(ctx context.Context, principal string) (*PrincipalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.principals[principal]
	if !ok {
		return nil, ErrNotFound
	}
	result := *p
	return &result, nil
}

// CountPrincipals returns the number of distinct principals.
func (m *MockStore) CountPrincipals(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.principals), nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
