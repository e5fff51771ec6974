package auth

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"absensi-backend/internal/platform/db"
)

type Account struct {
	ID           string    `json:"id"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsDisabled   bool      `json:"is_disabled"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccountStore は見つからない場合 (nil, nil) を返す。
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	List(ctx context.Context) ([]Account, error)
	Create(ctx context.Context, a *Account) error
	Delete(ctx context.Context, id string) (int64, error)
	UpdateID(ctx context.Context, oldID, newID string) (int64, error)
}

// ===== MySQL =====

type Store struct{ db db.DBTX }

func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

func (s *Store) GetByID(ctx context.Context, id string) (*Account, error) {
	const q = `
SELECT id, password_hash, role, is_disabled, created_at
FROM auth_accounts
WHERE id = ?
LIMIT 1
`
	var a Account
	err := s.db.QueryRowContext(ctx, q, id).Scan(&a.ID, &a.PasswordHash, &a.Role, &a.IsDisabled, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) List(ctx context.Context) ([]Account, error) {
	const q = `SELECT id, password_hash, role, is_disabled, created_at FROM auth_accounts ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Account{}
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.PasswordHash, &a.Role, &a.IsDisabled, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, a *Account) error {
	const q = `
INSERT INTO auth_accounts (id, password_hash, role, is_disabled, created_at)
VALUES (?, ?, ?, 0, ?)
`
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, q, a.ID, a.PasswordHash, a.Role, a.CreatedAt)
	if db.IsDuplicateKey(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auth_accounts WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) UpdateID(ctx context.Context, oldID, newID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE auth_accounts SET id = ? WHERE id = ?`, newID, oldID)
	if db.IsDuplicateKey(err) {
		return 0, ErrAlreadyExists
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ===== in-memory (demo / tests) =====

type MemoryStore struct {
	mu   sync.RWMutex
	accs map[string]Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accs: map[string]Account{}}
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accs[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Account, 0, len(m.accs))
	for _, a := range m.accs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accs[a.ID]; ok {
		return ErrAlreadyExists
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.accs[a.ID] = *a
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accs[id]; !ok {
		return 0, nil
	}
	delete(m.accs, id)
	return 1, nil
}

func (m *MemoryStore) UpdateID(_ context.Context, oldID, newID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accs[oldID]
	if !ok {
		return 0, nil
	}
	if _, taken := m.accs[newID]; taken {
		return 0, ErrAlreadyExists
	}
	delete(m.accs, oldID)
	a.ID = newID
	m.accs[newID] = a
	return 1, nil
}

var (
	_ AccountStore = (*Store)(nil)
	_ AccountStore = (*MemoryStore)(nil)
)
