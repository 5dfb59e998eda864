package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

type occurrenceKey struct {
	templateID string
	due        string
}

// Store is an in-process ledger used for development and tests.
type Store struct {
	mu    sync.RWMutex
	txs   map[string]core.Transaction
	users map[string]core.User
	runs  map[occurrenceKey]string
	now   func() time.Time
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		txs:   make(map[string]core.Transaction),
		users: make(map[string]core.User),
		runs:  make(map[occurrenceKey]string),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(t), nil
}

func (s *Store) insertLocked(t core.Transaction) core.Transaction {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.txs[t.ID] = t
	return t
}

func (s *Store) ListTransactions(_ context.Context, ownerID string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Transaction, 0)
	for _, t := range s.txs {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	ledger.SortNewestFirst(out)
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, ownerID, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.txs[id]
	if !ok || t.OwnerID != ownerID {
		return core.Transaction{}, core.ErrNotFound
	}
	return t, nil
}

func (s *Store) UpdateTransaction(_ context.Context, ownerID string, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.txs[t.ID]
	if !ok || existing.OwnerID != ownerID {
		return core.Transaction{}, core.ErrNotFound
	}
	t.OwnerID = existing.OwnerID
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = s.now()
	s.txs[t.ID] = t
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.txs[id]
	if !ok || existing.OwnerID != ownerID {
		return core.ErrNotFound
	}
	delete(s.txs, id)
	return nil
}

func (s *Store) ListTemplates(_ context.Context) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Transaction, 0)
	for _, t := range s.txs {
		if t.IsRecurring {
			out = append(out, t)
		}
	}
	ledger.SortNewestFirst(out)
	return out, nil
}

func (s *Store) MaterializeOccurrence(_ context.Context, template core.Transaction, due core.Date, instance core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := occurrenceKey{templateID: template.ID, due: due.String()}
	if _, done := s.runs[key]; done {
		return core.Transaction{}, core.ErrAlreadyMaterialized
	}
	created := s.insertLocked(instance)
	s.runs[key] = created.ID
	return created, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = core.NormalizeEmail(u.Email)
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return core.User{}, core.NewEmailTakenError()
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = s.now()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = core.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (s *Store) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.LastLogin = at
	s.users[id] = u
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
