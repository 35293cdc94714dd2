package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresChallengeRepository implements ChallengeRepository using PostgreSQL.
// Consume and RecordFailedAttempt are single conditional updates, so two
// submissions racing on one token serialize on the row: the database decides
// the winner, not the application.
type PostgresChallengeRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresChallengeRepository creates a new PostgreSQL-backed challenge repository
func NewPostgresChallengeRepository(pool *pgxpool.Pool) *PostgresChallengeRepository {
	return &PostgresChallengeRepository{pool: pool}
}

const challengeColumns = "token_hash, user_id, method, status, issued_at, expires_at, attempts_remaining"

func scanChallengeRow(row pgx.Row) (*Challenge, error) {
	var ch Challenge
	err := row.Scan(&ch.TokenHash, &ch.UserID, &ch.Method, &ch.Status,
		&ch.IssuedAt, &ch.ExpiresAt, &ch.AttemptsRemaining)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// Create stores a freshly issued challenge.
func (r *PostgresChallengeRepository) Create(ctx context.Context, challenge *Challenge) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO challenge (token_hash, user_id, method, status, issued_at, expires_at, attempts_remaining)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, challenge.TokenHash, challenge.UserID, challenge.Method, challenge.Status,
		challenge.IssuedAt, challenge.ExpiresAt, challenge.AttemptsRemaining)
	if err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}
	return nil
}

// GetByTokenHash returns the challenge with the given token hash.
func (r *PostgresChallengeRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*Challenge, error) {
	ch, err := scanChallengeRow(r.pool.QueryRow(ctx, `
		SELECT `+challengeColumns+`
		FROM challenge
		WHERE token_hash = $1
	`, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return ch, nil
}

// Consume flips issued to consumed when the challenge is still live. The
// guard and the write run in one statement, so at most one caller wins.
func (r *PostgresChallengeRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE challenge
		SET status = $3
		WHERE token_hash = $1
		  AND status = $4
		  AND attempts_remaining > 0
		  AND expires_at > $2
	`, tokenHash, now, STATUS_CONSUMED, STATUS_ISSUED)
	if err != nil {
		return false, fmt.Errorf("failed to consume challenge: %w", err)
	}
	if result.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.GetByTokenHash(ctx, tokenHash); err != nil {
		return false, err
	}
	return false, nil
}

// RecordFailedAttempt burns one attempt and locks the challenge at zero, in
// one conditional update.
func (r *PostgresChallengeRepository) RecordFailedAttempt(ctx context.Context, tokenHash string, now time.Time) (*Challenge, bool, error) {
	ch, err := scanChallengeRow(r.pool.QueryRow(ctx, `
		UPDATE challenge
		SET attempts_remaining = attempts_remaining - 1,
		    status = CASE WHEN attempts_remaining - 1 <= 0 THEN $3 ELSE status END
		WHERE token_hash = $1
		  AND status = $4
		  AND attempts_remaining > 0
		  AND expires_at > $2
		RETURNING `+challengeColumns+`
	`, tokenHash, now, STATUS_LOCKED, STATUS_ISSUED))
	if errors.Is(err, pgx.ErrNoRows) {
		// The challenge exists but no longer accepts attempts, or it is gone.
		existing, getErr := r.GetByTokenHash(ctx, tokenHash)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to record challenge attempt: %w", err)
	}
	return ch, true, nil
}

// MarkExpired flips an issued challenge to expired.
func (r *PostgresChallengeRepository) MarkExpired(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE challenge
		SET status = $2
		WHERE token_hash = $1
		  AND status = $3
	`, tokenHash, STATUS_EXPIRED, STATUS_ISSUED)
	if err != nil {
		return fmt.Errorf("failed to mark challenge expired: %w", err)
	}
	return nil
}

// DeleteTerminalBefore removes finished challenges issued before the cutoff.
func (r *PostgresChallengeRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM challenge
		WHERE status <> $2
		  AND issued_at < $1
	`, cutoff, STATUS_ISSUED)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished challenges: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// EnsureSchema creates the challenge table and its indexes when missing.
func (r *PostgresChallengeRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS challenge (
			token_hash TEXT PRIMARY KEY,
			user_id UUID NOT NULL,
			method TEXT NOT NULL,
			status TEXT NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			attempts_remaining INT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure challenge schema: %w", err)
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_challenge_user ON challenge(user_id)`)
	if err != nil {
		return fmt.Errorf("failed to ensure challenge indexes: %w", err)
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_challenge_expires ON challenge(expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to ensure challenge indexes: %w", err)
	}
	return nil
}
