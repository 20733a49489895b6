package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"vesting_treasury_bot/internal/domain/vesting"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const scheduleColumns = `asset, creator, beneficiary, start_at, vesting_seconds, cycle_seconds, cliff_seconds,
               total_amount, cliff_amount, claimed_amount, created_at, updated_at`

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// repository can run either standalone or bound to a caller's transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// PostgresScheduleRepository persists vesting schedules in the 'schedules'
// table, one row per live (asset, creator, beneficiary) key. The primary key
// is what enforces the one-live-schedule-per-key rule.
type PostgresScheduleRepository struct {
	db      dbtx
	locking bool // transaction-bound: reads take a row lock
}

func NewPostgresScheduleRepository(db *sql.DB) *PostgresScheduleRepository {
	return &PostgresScheduleRepository{db: db}
}

// newTxScheduleRepository binds the repository to an open transaction. Reads
// then use SELECT ... FOR UPDATE, so two withdrawals for the same key cannot
// both observe the same claimed amount even across service instances.
func newTxScheduleRepository(tx *sql.Tx) *PostgresScheduleRepository {
	return &PostgresScheduleRepository{db: tx, locking: true}
}

func (r *PostgresScheduleRepository) Create(ctx context.Context, s *vesting.Schedule) error {
	query := `INSERT INTO schedules (asset, creator, beneficiary, start_at, vesting_seconds, cycle_seconds, cliff_seconds, total_amount, cliff_amount, claimed_amount)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
               RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		s.Asset, s.Creator, s.Beneficiary,
		s.Start, s.VestingSeconds, s.CycleSeconds, s.CliffSeconds,
		s.TotalAmount.String(), s.CliffAmount.String(), s.ClaimedAmount.String(),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isScheduleKeyViolation(err) {
			return fmt.Errorf("%w: %s/%s/%s", vesting.ErrScheduleAlreadyExists, s.Asset, s.Creator, s.Beneficiary)
		}
		return fmt.Errorf("error creating schedule: %w", err)
	}
	return nil
}

// CreateBatch inserts all schedules or none of them. When the repository is
// already transaction-bound the inserts join that transaction; standalone it
// opens its own, so a key collision on any entry rolls back every insert.
func (r *PostgresScheduleRepository) CreateBatch(ctx context.Context, schedules []*vesting.Schedule) error {
	if len(schedules) == 0 {
		return nil
	}

	if db, ok := r.db.(*sql.DB); ok {
		txn, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for batch create: %w", err)
		}
		defer txn.Rollback() // Rollback if not committed

		if err := insertSchedules(ctx, txn, schedules); err != nil {
			return err
		}
		return txn.Commit()
	}
	return insertSchedules(ctx, r.db, schedules)
}

func insertSchedules(ctx context.Context, q dbtx, schedules []*vesting.Schedule) error {
	stmt, err := q.PrepareContext(ctx, `INSERT INTO schedules (asset, creator, beneficiary, start_at, vesting_seconds, cycle_seconds, cliff_seconds, total_amount, cliff_amount, claimed_amount)
                                      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for batch create: %w", err)
	}
	defer stmt.Close()

	for _, s := range schedules {
		_, err := stmt.ExecContext(ctx,
			s.Asset, s.Creator, s.Beneficiary,
			s.Start, s.VestingSeconds, s.CycleSeconds, s.CliffSeconds,
			s.TotalAmount.String(), s.CliffAmount.String(), s.ClaimedAmount.String(),
		)
		if err != nil {
			if isScheduleKeyViolation(err) {
				return fmt.Errorf("batch create (%s/%s/%s): %w", s.Asset, s.Creator, s.Beneficiary, vesting.ErrScheduleAlreadyExists)
			}
			return fmt.Errorf("error executing statement for batch create (%s/%s/%s): %w", s.Asset, s.Creator, s.Beneficiary, err)
		}
	}
	return nil
}

// getScheduleQuery builds the lookup statement; transaction-bound reads lock
// the row for the duration of the transaction.
func getScheduleQuery(locking bool) string {
	query := `SELECT ` + scheduleColumns + `
               FROM schedules WHERE asset = $1 AND creator = $2 AND beneficiary = $3`
	if locking {
		query += ` FOR UPDATE`
	}
	return query
}

func (r *PostgresScheduleRepository) Get(ctx context.Context, key vesting.Key) (*vesting.Schedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx, getScheduleQuery(r.locking), key.Asset, key.Creator, key.Beneficiary))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vesting.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("error getting schedule: %w", err)
	}
	return s, nil
}

func (r *PostgresScheduleRepository) UpdateClaimed(ctx context.Context, key vesting.Key, claimed *big.Int) error {
	query := `UPDATE schedules
               SET claimed_amount = $4, updated_at = NOW()
               WHERE asset = $1 AND creator = $2 AND beneficiary = $3`
	res, err := r.db.ExecContext(ctx, query, key.Asset, key.Creator, key.Beneficiary, claimed.String())
	if err != nil {
		return fmt.Errorf("error updating claimed amount: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking claimed-amount update result: %w", err)
	}
	if affected == 0 {
		return vesting.ErrScheduleNotFound
	}
	return nil
}

func (r *PostgresScheduleRepository) Remove(ctx context.Context, key vesting.Key) error {
	query := `DELETE FROM schedules WHERE asset = $1 AND creator = $2 AND beneficiary = $3`
	res, err := r.db.ExecContext(ctx, query, key.Asset, key.Creator, key.Beneficiary)
	if err != nil {
		return fmt.Errorf("error removing schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking schedule removal result: %w", err)
	}
	if affected == 0 {
		return vesting.ErrScheduleNotFound
	}
	return nil
}

func (r *PostgresScheduleRepository) ListLive(ctx context.Context) ([]*vesting.Schedule, error) {
	query := `SELECT ` + scheduleColumns + `
               FROM schedules ORDER BY asset, creator, beneficiary`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing schedules: %w", err)
	}
	defer rows.Close()

	schedules := make([]*vesting.Schedule, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}
	return schedules, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSchedule reads one schedules row. NUMERIC columns arrive as decimal
// strings and are parsed into big.Int so no float conversion happens.
func scanSchedule(row rowScanner) (*vesting.Schedule, error) {
	s := &vesting.Schedule{}
	var total, cliff, claimed string
	err := row.Scan(
		&s.Asset, &s.Creator, &s.Beneficiary,
		&s.Start, &s.VestingSeconds, &s.CycleSeconds, &s.CliffSeconds,
		&total, &cliff, &claimed,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.TotalAmount, err = parseAmount(total); err != nil {
		return nil, err
	}
	if s.CliffAmount, err = parseAmount(cliff); err != nil {
		return nil, err
	}
	if s.ClaimedAmount, err = parseAmount(claimed); err != nil {
		return nil, err
	}
	return s, nil
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q in database", value)
	}
	return amount, nil
}

// isScheduleKeyViolation detects a unique violation on the schedules primary
// key. More robust check might involve specific pq error codes.
func isScheduleKeyViolation(err error) bool {
	return strings.Contains(err.Error(), "schedules_pkey")
}
