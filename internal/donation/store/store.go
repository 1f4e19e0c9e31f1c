// Package store persists donor records.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"curaledger/internal/donation/models"
	"curaledger/pkg/domain"
	"curaledger/pkg/platform/sentinel"
	"curaledger/pkg/platform/tx"
)

// ErrNotFound is returned when the donor has no record yet.
var ErrNotFound = sentinel.ErrNotFound

// MutateFunc receives the current donor (nil when absent) and returns the
// state to store.
type MutateFunc func(current *models.Donor) (*models.Donor, error)

// InMemory keeps donors in a map guarded by one lock.
type InMemory struct {
	mu     sync.RWMutex
	donors map[domain.ActorID]*models.Donor
}

func NewInMemory() *InMemory {
	return &InMemory{donors: make(map[domain.ActorID]*models.Donor)}
}

func (s *InMemory) FindByID(_ context.Context, id domain.ActorID) (*models.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.donors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

// Mutate runs fn under the store lock and keeps its result.
func (s *InMemory) Mutate(_ context.Context, id domain.ActorID, fn MutateFunc) (*models.Donor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.donors[id].Clone())
	if err != nil {
		return nil, err
	}
	s.donors[id] = next.Clone()
	return next, nil
}

// PostgresStore keeps donors in the donors, donor_cases and
// donor_recognitions tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.ActorID) (*models.Donor, error) {
	d, err := load(ctx, s.db, id, false)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Mutate locks the donor row for the duration of fn. The row is claimed with
// an empty insert first so concurrent first contributions queue on the
// primary key instead of overwriting each other; fn sees nil when this
// transaction created it.
func (s *PostgresStore) Mutate(ctx context.Context, id domain.ActorID, fn MutateFunc) (*models.Donor, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin donor tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	res, err := sqlTx.ExecContext(ctx, `
		INSERT INTO donors (id, total_donated, updated_at) VALUES ($1, 0, NOW())
		ON CONFLICT (id) DO NOTHING
	`, id)
	if err != nil {
		return nil, fmt.Errorf("claim donor: %w", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim donor: %w", err)
	}

	var current *models.Donor
	if created == 0 {
		if current, err = load(ctx, sqlTx, id, true); err != nil {
			return nil, err
		}
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	if _, err := sqlTx.ExecContext(ctx, `
		UPDATE donors SET total_donated = $2, updated_at = $3 WHERE id = $1
	`, next.ID, strconv.FormatUint(next.TotalDonated, 10), next.UpdatedAt); err != nil {
		return nil, fmt.Errorf("save donor: %w", err)
	}
	for i, caseID := range next.Cases {
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO donor_cases (donor_id, position, case_id) VALUES ($1, $2, $3)
			ON CONFLICT (donor_id, case_id) DO NOTHING
		`, next.ID, i, caseID); err != nil {
			return nil, fmt.Errorf("save donor case: %w", err)
		}
	}
	for _, r := range next.Recognitions {
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO donor_recognitions (donor_id, case_id, label, granted_by, granted_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (donor_id, case_id) DO NOTHING
		`, next.ID, r.CaseID, r.Label, r.GrantedBy, r.GrantedAt); err != nil {
			return nil, fmt.Errorf("save recognition: %w", err)
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit donor tx: %w", err)
	}
	return next, nil
}

func load(ctx context.Context, q tx.Querier, id domain.ActorID, forUpdate bool) (*models.Donor, error) {
	query := `SELECT id, total_donated::TEXT, updated_at FROM donors WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		d     models.Donor
		total string
	)
	err := q.QueryRowContext(ctx, query, id).Scan(&d.ID, &total, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load donor: %w", err)
	}
	if d.TotalDonated, err = strconv.ParseUint(total, 10, 64); err != nil {
		return nil, fmt.Errorf("parse donor total: %w", err)
	}

	rows, err := q.QueryContext(ctx, `SELECT case_id FROM donor_cases WHERE donor_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load donor cases: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.CaseID
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan donor case: %w", err)
		}
		d.Cases = append(d.Cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recs, err := q.QueryContext(ctx, `
		SELECT case_id, label, granted_by, granted_at FROM donor_recognitions
		WHERE donor_id = $1 ORDER BY granted_at, case_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load recognitions: %w", err)
	}
	defer recs.Close()
	for recs.Next() {
		var r models.Recognition
		if err := recs.Scan(&r.CaseID, &r.Label, &r.GrantedBy, &r.GrantedAt); err != nil {
			return nil, fmt.Errorf("scan recognition: %w", err)
		}
		d.Recognitions = append(d.Recognitions, r)
	}
	return &d, recs.Err()
}
