package lockout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLockoutRepository implements LockoutRepository using PostgreSQL.
// The failure transition runs as a single upsert, so concurrent failures
// serialize on the row and every increment lands.
type PostgresLockoutRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresLockoutRepository creates a new PostgreSQL-backed lockout repository
func NewPostgresLockoutRepository(pool *pgxpool.Pool) *PostgresLockoutRepository {
	return &PostgresLockoutRepository{pool: pool}
}

// RecordFailure applies one failure transition atomically. The window resets
// when it elapsed and no lock is in force; crossing the threshold sets
// locked_until; an active lock stands as issued.
func (r *PostgresLockoutRepository) RecordFailure(ctx context.Context, userID uuid.UUID, now time.Time, policy FailurePolicy) (*LockRecord, error) {
	lockUntil := now.Add(policy.LockDuration)
	windowCutoff := now.Add(-policy.Window)

	record := LockRecord{UserID: userID}
	var lockedUntil sql.NullTime
	err := r.pool.QueryRow(ctx, `
		INSERT INTO twofa_lockout (user_id, failure_count, window_start_at, last_failure_at, locked_until)
		VALUES ($1, 1, $2, $2, CASE WHEN 1 >= $3 THEN $4::timestamptz END)
		ON CONFLICT (user_id) DO UPDATE SET
			failure_count = CASE
				WHEN (twofa_lockout.locked_until IS NULL OR twofa_lockout.locked_until <= $2)
					AND twofa_lockout.window_start_at <= $5 THEN 1
				ELSE twofa_lockout.failure_count + 1
			END,
			window_start_at = CASE
				WHEN (twofa_lockout.locked_until IS NULL OR twofa_lockout.locked_until <= $2)
					AND twofa_lockout.window_start_at <= $5 THEN $2::timestamptz
				ELSE twofa_lockout.window_start_at
			END,
			last_failure_at = $2,
			locked_until = CASE
				WHEN twofa_lockout.locked_until IS NOT NULL AND twofa_lockout.locked_until > $2 THEN twofa_lockout.locked_until
				WHEN (CASE
					WHEN (twofa_lockout.locked_until IS NULL OR twofa_lockout.locked_until <= $2)
						AND twofa_lockout.window_start_at <= $5 THEN 1
					ELSE twofa_lockout.failure_count + 1
				END) >= $3 THEN $4::timestamptz
			END
		RETURNING failure_count, window_start_at, last_failure_at, locked_until
	`, userID, now, policy.Threshold, lockUntil, windowCutoff).Scan(
		&record.FailureCount, &record.WindowStartAt, &record.LastFailureAt, &lockedUntil)
	if err != nil {
		return nil, fmt.Errorf("failed to record verification failure: %w", err)
	}
	if lockedUntil.Valid {
		record.LockedUntil = &lockedUntil.Time
	}
	return &record, nil
}

// Get returns the user's record
func (r *PostgresLockoutRepository) Get(ctx context.Context, userID uuid.UUID) (*LockRecord, error) {
	record := LockRecord{UserID: userID}
	var lockedUntil sql.NullTime
	err := r.pool.QueryRow(ctx, `
		SELECT failure_count, window_start_at, last_failure_at, locked_until
		FROM twofa_lockout
		WHERE user_id = $1
	`, userID).Scan(&record.FailureCount, &record.WindowStartAt, &record.LastFailureAt, &lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLockRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lockout record: %w", err)
	}
	if lockedUntil.Valid {
		record.LockedUntil = &lockedUntil.Time
	}
	return &record, nil
}

// Delete removes the user's record
func (r *PostgresLockoutRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM twofa_lockout
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete lockout record: %w", err)
	}
	return nil
}

// DeleteStale removes records with no active lock and no recent failure
func (r *PostgresLockoutRepository) DeleteStale(ctx context.Context, now, staleBefore time.Time) (int, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM twofa_lockout
		WHERE (locked_until IS NULL OR locked_until <= $1)
		  AND last_failure_at < $2
	`, now, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale lockout records: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// EnsureSchema creates the twofa_lockout table when missing.
func (r *PostgresLockoutRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS twofa_lockout (
			user_id UUID PRIMARY KEY,
			failure_count INT NOT NULL DEFAULT 0,
			window_start_at TIMESTAMPTZ NOT NULL,
			last_failure_at TIMESTAMPTZ NOT NULL,
			locked_until TIMESTAMPTZ
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure twofa_lockout schema: %w", err)
	}
	return nil
}
