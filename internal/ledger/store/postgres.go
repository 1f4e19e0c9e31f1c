package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"curaledger/internal/ledger/models"
	"curaledger/pkg/domain"
	"curaledger/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// PostgresStore persists aggregates in PostgreSQL. Execute locks the case row with
// SELECT ... FOR UPDATE for the lifetime of one transaction, which gives the same
// single-writer-per-case guarantee as the in-memory shards across processes.
//
// Amounts are NUMERIC(20,0) and travel as decimal strings: database/sql cannot
// bind uint64 values with the high bit set.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, timeout: defaultTxTimeout}
}

// NextCaseNumber advances the singleton counter row.
func (s *PostgresStore) NextCaseNumber(ctx context.Context) (uint64, error) {
	var n int64
	err := tx.QuerierFrom(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO case_counter (id, current) VALUES (1, 1)
		ON CONFLICT (id) DO UPDATE SET current = case_counter.current + 1
		RETURNING current
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("advance case counter: %w", err)
	}
	return uint64(n), nil
}

// CreateIfPatientAvailable inserts a case. The primary key guards the id and the
// partial unique index cases_one_open_per_patient guards the patient slot.
func (s *PostgresStore) CreateIfPatientAvailable(ctx context.Context, c *models.Case) error {
	_, err := tx.QuerierFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO cases (id, patient, description, records_link, target_amount, submitted_at,
			status, yes_votes, no_votes, raised_native, funded, decided_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		c.ID, c.Patient, c.Description, c.RecordsLink, u64(c.TargetAmount), c.SubmittedAt,
		c.Status, int64(c.YesVotes), int64(c.NoVotes), u64(c.Raised.Native), c.Funded, c.DecidedAt, c.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if pqErr.Constraint == "cases_one_open_per_patient" {
				return ErrPatientHasOpenCase
			}
			return ErrCaseIDTaken
		}
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.CaseID) (*models.Case, error) {
	q := tx.QuerierFrom(ctx, s.db)
	c, err := scanCase(q.QueryRowContext(ctx, selectCase+` WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	tokens, err := loadTokens(ctx, q, `SELECT asset, amount FROM case_tokens WHERE case_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	c.Raised.Tokens = tokens
	return c, nil
}

// Load reads the aggregate without row locks.
func (s *PostgresStore) Load(ctx context.Context, id domain.CaseID) (*models.Aggregate, error) {
	return s.load(ctx, tx.QuerierFrom(ctx, s.db), id, false)
}

func (s *PostgresStore) ListDonations(ctx context.Context, id domain.CaseID) ([]models.Donation, error) {
	rows, err := tx.QuerierFrom(ctx, s.db).QueryContext(ctx, `
		SELECT id, case_id, donor, asset, amount, donated_at
		FROM donations WHERE case_id = $1 ORDER BY donated_at, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	var out []models.Donation
	for rows.Next() {
		var d models.Donation
		var amount string
		if err := rows.Scan(&d.ID, &d.CaseID, &d.Donor, &d.Asset, &amount, &d.DonatedAt); err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		if d.Amount, err = parseU64(amount); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Execute loads the aggregate under FOR UPDATE, runs fn, and writes the result
// back in the same transaction.
func (s *PostgresStore) Execute(ctx context.Context, id domain.CaseID, fn func(agg *models.Aggregate) error) (*models.Aggregate, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin case tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	agg, err := s.load(ctx, sqlTx, id, true)
	if err != nil {
		return nil, err
	}
	if err := fn(agg); err != nil {
		return nil, err
	}
	if err := s.persist(tx.WithTx(ctx, sqlTx), sqlTx, agg); err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit case tx: %w", err)
	}
	return agg, nil
}

const selectCase = `
	SELECT id, patient, description, records_link, target_amount, submitted_at, status,
		yes_votes, no_votes, raised_native, funded, decided_at, updated_at
	FROM cases`

func (s *PostgresStore) load(ctx context.Context, q tx.Querier, id domain.CaseID, forUpdate bool) (*models.Aggregate, error) {
	query := selectCase + ` WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	c, err := scanCase(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if c.Raised.Tokens, err = loadTokens(ctx, q, `SELECT asset, amount FROM case_tokens WHERE case_id = $1 ORDER BY position`, id); err != nil {
		return nil, err
	}

	agg := &models.Aggregate{Case: c}
	if agg.Votes, err = loadVotes(ctx, q, id); err != nil {
		return nil, err
	}
	if agg.Escrow, err = loadEscrow(ctx, q, id); err != nil {
		return nil, err
	}
	return agg, nil
}

func (s *PostgresStore) persist(ctx context.Context, q tx.Querier, agg *models.Aggregate) error {
	c := agg.Case
	for _, d := range agg.NewDonations {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO donations (id, case_id, donor, asset, amount, donated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, d.ID, d.CaseID, d.Donor, d.Asset, u64(d.Amount), d.DonatedAt); err != nil {
			return fmt.Errorf("insert donation: %w", err)
		}
	}

	if agg.Closed {
		if _, err := q.ExecContext(ctx, `DELETE FROM cases WHERE id = $1`, c.ID); err != nil {
			return fmt.Errorf("delete case: %w", err)
		}
		return nil
	}

	if _, err := q.ExecContext(ctx, `
		UPDATE cases SET
			target_amount = $2, status = $3, yes_votes = $4, no_votes = $5,
			raised_native = $6, funded = $7, decided_at = $8, updated_at = $9
		WHERE id = $1
	`, c.ID, u64(c.TargetAmount), c.Status, int64(c.YesVotes), int64(c.NoVotes),
		u64(c.Raised.Native), c.Funded, c.DecidedAt, c.UpdatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrPatientHasOpenCase
		}
		return fmt.Errorf("update case: %w", err)
	}
	if err := replaceTokens(ctx, q, "case_tokens", c.ID, c.Raised.Tokens); err != nil {
		return err
	}

	// Votes are append-only: existing rows are left untouched.
	for _, v := range agg.Votes {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO votes (case_id, verifier, approve, cast_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (case_id, verifier) DO NOTHING
		`, v.CaseID, v.Verifier, v.Approve, v.CastAt); err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}
	}

	if agg.Escrow == nil {
		return nil
	}
	e := agg.Escrow
	if _, err := q.ExecContext(ctx, `
		INSERT INTO escrows (case_id, account, native, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (case_id) DO UPDATE SET
			native = EXCLUDED.native,
			closed_at = EXCLUDED.closed_at
	`, e.CaseID, e.Account, u64(e.Balances.Native), e.OpenedAt, e.ClosedAt); err != nil {
		return fmt.Errorf("upsert escrow: %w", err)
	}
	return replaceTokens(ctx, q, "escrow_tokens", e.CaseID, e.Balances.Tokens)
}

func replaceTokens(ctx context.Context, q tx.Querier, table string, id domain.CaseID, tokens []models.TokenBalance) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE case_id = $1`, id); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	for i, t := range tokens {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO `+table+` (case_id, position, asset, amount) VALUES ($1, $2, $3, $4)
		`, id, i, t.Asset, u64(t.Amount)); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func scanCase(row *sql.Row) (*models.Case, error) {
	var (
		c                    models.Case
		target, raisedNative string
		yes, no              int64
		decidedAt            sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Patient, &c.Description, &c.RecordsLink, &target, &c.SubmittedAt,
		&c.Status, &yes, &no, &raisedNative, &c.Funded, &decidedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan case: %w", err)
	}
	if c.TargetAmount, err = parseU64(target); err != nil {
		return nil, err
	}
	if c.Raised.Native, err = parseU64(raisedNative); err != nil {
		return nil, err
	}
	c.YesVotes, c.NoVotes = uint64(yes), uint64(no)
	if decidedAt.Valid {
		t := decidedAt.Time
		c.DecidedAt = &t
	}
	return &c, nil
}

func loadTokens(ctx context.Context, q tx.Querier, query string, id domain.CaseID) ([]models.TokenBalance, error) {
	rows, err := q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	defer rows.Close()

	var out []models.TokenBalance
	for rows.Next() {
		var t models.TokenBalance
		var amount string
		if err := rows.Scan(&t.Asset, &amount); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		if t.Amount, err = parseU64(amount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func loadVotes(ctx context.Context, q tx.Querier, id domain.CaseID) ([]models.Vote, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT case_id, verifier, approve, cast_at FROM votes WHERE case_id = $1 ORDER BY cast_at, verifier
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load votes: %w", err)
	}
	defer rows.Close()

	var out []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.CaseID, &v.Verifier, &v.Approve, &v.CastAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func loadEscrow(ctx context.Context, q tx.Querier, id domain.CaseID) (*models.Escrow, error) {
	var (
		e        models.Escrow
		native   string
		closedAt sql.NullTime
	)
	err := q.QueryRowContext(ctx, `
		SELECT case_id, account, native, opened_at, closed_at FROM escrows WHERE case_id = $1
	`, id).Scan(&e.CaseID, &e.Account, &native, &e.OpenedAt, &closedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load escrow: %w", err)
	}
	if e.Balances.Native, err = parseU64(native); err != nil {
		return nil, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		e.ClosedAt = &t
	}
	if e.Balances.Tokens, err = loadTokens(ctx, q, `SELECT asset, amount FROM escrow_tokens WHERE case_id = $1 ORDER BY position`, id); err != nil {
		return nil, err
	}
	return &e, nil
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}
