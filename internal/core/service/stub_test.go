package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/99minutos/authgate/internal/core/domain"
)

// memStore is an in-memory ports.UserStore used across the service tests.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*domain.Account

	recordLoginErr error
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[int64]*domain.Account)}
}

func (m *memStore) Initialize(context.Context) error { return nil }
func (m *memStore) Shutdown(context.Context) error   { return nil }
func (m *memStore) Ping(context.Context) error       { return nil }

func (m *memStore) CreateAccount(_ context.Context, username, hash string, role domain.Role) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Username == username {
			return 0, domain.ErrDuplicateUsername
		}
	}
	m.nextID++
	now := time.Now().UTC()
	m.accounts[m.nextID] = &domain.Account{
		ID: m.nextID, Username: username, PasswordHash: hash, Role: role,
		CreatedAt: now, UpdatedAt: now, IsActive: true,
	}
	return m.nextID, nil
}

func (m *memStore) GetByUsername(_ context.Context, username string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Username == username && a.IsActive {
			c := *a
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) GetByID(_ context.Context, id int64) (*domain.AccountView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok || !a.IsActive {
		return nil, domain.ErrNotFound
	}
	return a.View(), nil
}

func (m *memStore) ListAll(context.Context) ([]domain.AccountView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AccountView, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, *a.View())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) mutate(id int64, fn func(a *domain.Account) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	if err := fn(a); err != nil {
		return err
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) UpdateRole(_ context.Context, id int64, role domain.Role) error {
	return m.mutate(id, func(a *domain.Account) error { a.Role = role; return nil })
}

func (m *memStore) UpdateFields(_ context.Context, id int64, u domain.AccountUpdate) error {
	if u.Username != nil {
		m.mu.Lock()
		for otherID, a := range m.accounts {
			if otherID != id && a.Username == *u.Username {
				m.mu.Unlock()
				return domain.ErrDuplicateUsername
			}
		}
		m.mu.Unlock()
	}
	return m.mutate(id, func(a *domain.Account) error {
		if u.Username != nil {
			a.Username = *u.Username
		}
		if u.Role != nil {
			a.Role = *u.Role
		}
		if u.IsActive != nil {
			a.IsActive = *u.IsActive
		}
		return nil
	})
}

func (m *memStore) RecordLogin(_ context.Context, id int64) error {
	if m.recordLoginErr != nil {
		return m.recordLoginErr
	}
	return m.mutate(id, func(a *domain.Account) error {
		now := time.Now().UTC()
		a.LastLoginAt = &now
		return nil
	})
}

func (m *memStore) SetPassword(_ context.Context, id int64, hash string) error {
	return m.mutate(id, func(a *domain.Account) error { a.PasswordHash = hash; return nil })
}

func (m *memStore) Deactivate(_ context.Context, id int64) error {
	return m.mutate(id, func(a *domain.Account) error { a.IsActive = false; return nil })
}

func (m *memStore) DeleteHard(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.accounts, id)
	return nil
}

// memSettings is an in-memory ports.EnforcementRepository with injectable
// failures.
type memSettings struct {
	mu      sync.Mutex
	setting *domain.EnforcementSetting
	loadErr error
	saveErr error
	loads   int
	saves   int
}

func (m *memSettings) Load(context.Context) (domain.EnforcementSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return domain.EnforcementSetting{}, m.loadErr
	}
	if m.setting == nil {
		return domain.EnforcementSetting{}, domain.ErrSettingNotFound
	}
	return *m.setting, nil
}

func (m *memSettings) Save(_ context.Context, s domain.EnforcementSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.setting = &s
	return nil
}

var errBoom = errors.New("boom")
