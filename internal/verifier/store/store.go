// Package store persists the verifier registry.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/lib/pq"

	"curaledger/internal/verifier/models"
	"curaledger/pkg/domain"
	"curaledger/pkg/platform/sentinel"
)

// ErrNotFound is returned when the verifier does not exist.
var ErrNotFound = sentinel.ErrNotFound

// MutateFunc receives the current verifier (nil when absent) and returns the
// state to store.
type MutateFunc func(current *models.Verifier) (*models.Verifier, error)

// InMemory is a mutex-guarded registry.
type InMemory struct {
	mu        sync.RWMutex
	verifiers map[domain.ActorID]*models.Verifier
}

func NewInMemory() *InMemory {
	return &InMemory{verifiers: make(map[domain.ActorID]*models.Verifier)}
}

func (s *InMemory) FindByID(_ context.Context, id domain.ActorID) (*models.Verifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verifiers[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *v
	return &out, nil
}

// List returns every verifier, active or not, ordered by id.
func (s *InMemory) List(_ context.Context) ([]*models.Verifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Verifier, 0, len(s.verifiers))
	for _, v := range s.verifiers {
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) CountActive(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n uint64
	for _, v := range s.verifiers {
		if v.Active {
			n++
		}
	}
	return n, nil
}

// Mutate runs fn under the registry lock and stores its result.
func (s *InMemory) Mutate(_ context.Context, id domain.ActorID, fn MutateFunc) (*models.Verifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current *models.Verifier
	if v, ok := s.verifiers[id]; ok {
		cp := *v
		current = &cp
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	stored := *next
	s.verifiers[id] = &stored
	return next, nil
}

// PostgresStore keeps the registry in the verifiers table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectVerifier = `SELECT id, kind, active, added_at, updated_at FROM verifiers`

func scanVerifier(scan func(dest ...any) error) (*models.Verifier, error) {
	var v models.Verifier
	if err := scan(&v.ID, &v.Kind, &v.Active, &v.AddedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.ActorID) (*models.Verifier, error) {
	v, err := scanVerifier(s.db.QueryRowContext(ctx, selectVerifier+` WHERE id = $1`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find verifier: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Verifier, error) {
	rows, err := s.db.QueryContext(ctx, selectVerifier+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list verifiers: %w", err)
	}
	defer rows.Close()
	var out []*models.Verifier
	for rows.Next() {
		v, err := scanVerifier(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan verifier: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountActive(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM verifiers WHERE active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active verifiers: %w", err)
	}
	return uint64(n), nil
}

// Mutate locks the row with FOR UPDATE when it exists. Two concurrent first
// inserts of the same id race on the primary key; the loser gets
// sentinel.ErrAlreadyUsed.
func (s *PostgresStore) Mutate(ctx context.Context, id domain.ActorID, fn MutateFunc) (*models.Verifier, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin verifier tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := scanVerifier(tx.QueryRowContext(ctx, selectVerifier+` WHERE id = $1 FOR UPDATE`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		current = nil
	} else if err != nil {
		return nil, fmt.Errorf("lock verifier: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	if current == nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO verifiers (id, kind, active, added_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`, next.ID, next.Kind, next.Active, next.AddedAt, next.UpdatedAt)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE verifiers SET kind = $2, active = $3, updated_at = $4 WHERE id = $1
		`, next.ID, next.Kind, next.Active, next.UpdatedAt)
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, sentinel.ErrAlreadyUsed
		}
		return nil, fmt.Errorf("save verifier: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit verifier tx: %w", err)
	}
	return next, nil
}
