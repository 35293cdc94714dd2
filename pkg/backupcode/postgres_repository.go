package backupcode

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackupCodeRepository implements BackupCodeRepository using
// PostgreSQL. ReplaceUnused runs in a transaction; MarkUsed relies on a
// conditional update so concurrent consumers of one code cannot both win.
type PostgresBackupCodeRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBackupCodeRepository creates a new PostgreSQL-backed backup code repository
func NewPostgresBackupCodeRepository(pool *pgxpool.Pool) *PostgresBackupCodeRepository {
	return &PostgresBackupCodeRepository{pool: pool}
}

// ReplaceUnused swaps the user's unused codes for the new batch in one transaction
func (r *PostgresBackupCodeRepository) ReplaceUnused(ctx context.Context, userID uuid.UUID, codes []BackupCode) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM backup_code
		WHERE user_id = $1 AND used = FALSE
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete unused backup codes: %w", err)
	}

	if err := insertCodes(ctx, tx, codes); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit backup code batch: %w", err)
	}
	return nil
}

// Insert stores additional codes without touching existing ones
func (r *PostgresBackupCodeRepository) Insert(ctx context.Context, codes []BackupCode) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertCodes(ctx, tx, codes); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit backup code batch: %w", err)
	}
	return nil
}

func insertCodes(ctx context.Context, tx pgx.Tx, codes []BackupCode) error {
	for _, code := range codes {
		_, err := tx.Exec(ctx, `
			INSERT INTO backup_code (id, user_id, code_hash, used, used_at, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, code.ID, code.UserID, code.CodeHash, code.Used, code.UsedAt, code.ExpiresAt, code.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert backup code: %w", err)
		}
	}
	return nil
}

// ListUnused returns the user's unused codes
func (r *PostgresBackupCodeRepository) ListUnused(ctx context.Context, userID uuid.UUID) ([]BackupCode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, code_hash, used, used_at, expires_at, created_at
		FROM backup_code
		WHERE user_id = $1 AND used = FALSE
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backup codes: %w", err)
	}
	defer rows.Close()

	var codes []BackupCode
	for rows.Next() {
		var code BackupCode
		var usedAt, expiresAt sql.NullTime
		err := rows.Scan(&code.ID, &code.UserID, &code.CodeHash, &code.Used, &usedAt, &expiresAt, &code.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup code: %w", err)
		}
		if usedAt.Valid {
			code.UsedAt = &usedAt.Time
		}
		if expiresAt.Valid {
			code.ExpiresAt = &expiresAt.Time
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read backup codes: %w", err)
	}
	return codes, nil
}

// MarkUsed flips a code to used if it still is unused
func (r *PostgresBackupCodeRepository) MarkUsed(ctx context.Context, userID, codeID uuid.UUID, usedAt time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE backup_code
		SET used = TRUE, used_at = $3
		WHERE id = $1 AND user_id = $2 AND used = FALSE
	`, codeID, userID, usedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark backup code used: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// DeleteUnused removes the user's unused codes
func (r *PostgresBackupCodeRepository) DeleteUnused(ctx context.Context, userID uuid.UUID) (int, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM backup_code
		WHERE user_id = $1 AND used = FALSE
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unused backup codes: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// CountUsable counts unused, non-expired codes
func (r *PostgresBackupCodeRepository) CountUsable(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM backup_code
		WHERE user_id = $1 AND used = FALSE
		  AND (expires_at IS NULL OR expires_at > $2)
	`, userID, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count backup codes: %w", err)
	}
	return count, nil
}

// EnsureSchema creates the backup_code table and its index when missing.
func (r *PostgresBackupCodeRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS backup_code (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			code_hash TEXT NOT NULL,
			used BOOLEAN NOT NULL DEFAULT FALSE,
			used_at TIMESTAMPTZ,
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure backup_code schema: %w", err)
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_backup_code_user ON backup_code(user_id)`)
	if err != nil {
		return fmt.Errorf("failed to ensure backup_code indexes: %w", err)
	}
	return nil
}
