package credentials

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

// PostgresCredentialRepository implements CredentialRepository using
// PostgreSQL. Confirm operations are conditional UPDATEs guarded by the
// pending state, so a stale confirm cannot re-enable a cleared method.
type PostgresCredentialRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCredentialRepository creates a new PostgreSQL-backed credential repository
func NewPostgresCredentialRepository(pool *pgxpool.Pool) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{pool: pool}
}

const credentialColumns = `user_id, totp_secret_encrypted, totp_enabled, phone_number,
	phone_verified, preferred_method, two_factor_verified_at, created_at, updated_at`

func scanCredentialRow(row pgx.Row) (*CredentialRecord, error) {
	record := CredentialRecord{}
	var verifiedAt sql.NullTime
	err := row.Scan(
		&record.UserID,
		&record.TotpSecretEncrypted,
		&record.TotpEnabled,
		&record.PhoneNumber,
		&record.PhoneVerified,
		&record.PreferredMethod,
		&verifiedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		record.TwoFactorVerifiedAt = &verifiedAt.Time
	}
	return &record, nil
}

func (r *PostgresCredentialRepository) Get(ctx context.Context, userID uuid.UUID) (*CredentialRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+credentialColumns+`
		FROM twofa_credentials
		WHERE user_id = $1
	`, userID)

	record, err := scanCredentialRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to get credential record: %w", err)
	}
	return record, nil
}

func (r *PostgresCredentialRepository) GetOrCreate(ctx context.Context, userID uuid.UUID, now time.Time) (*CredentialRecord, error) {
	// The no-op DO UPDATE makes RETURNING yield the row on both paths.
	row := r.pool.QueryRow(ctx, `
		INSERT INTO twofa_credentials (user_id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id) DO UPDATE SET user_id = twofa_credentials.user_id
		RETURNING `+credentialColumns+`
	`, userID, now)

	record, err := scanCredentialRow(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create credential record: %w", err)
	}
	return record, nil
}

func (r *PostgresCredentialRepository) SetPendingTotpSecret(ctx context.Context, userID uuid.UUID, encryptedSecret string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO twofa_credentials (user_id, totp_secret_encrypted, totp_enabled, created_at, updated_at)
		VALUES ($1, $2, FALSE, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			totp_secret_encrypted = $2,
			totp_enabled = FALSE,
			updated_at = $3
	`, userID, encryptedSecret, now)
	if err != nil {
		return fmt.Errorf("failed to set pending totp secret: %w", err)
	}
	return nil
}

func (r *PostgresCredentialRepository) ConfirmTotp(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE twofa_credentials
		SET totp_enabled = TRUE, updated_at = $2
		WHERE user_id = $1 AND totp_secret_encrypted <> '' AND totp_enabled = FALSE
	`, userID, now)
	if err != nil {
		return false, fmt.Errorf("failed to confirm totp enrollment: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *PostgresCredentialRepository) SetPendingPhone(ctx context.Context, userID uuid.UUID, phone string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO twofa_credentials (user_id, phone_number, phone_verified, created_at, updated_at)
		VALUES ($1, $2, FALSE, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			phone_number = $2,
			phone_verified = FALSE,
			updated_at = $3
	`, userID, phone, now)
	if err != nil {
		return fmt.Errorf("failed to set pending phone: %w", err)
	}
	return nil
}

func (r *PostgresCredentialRepository) ConfirmPhone(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE twofa_credentials
		SET phone_verified = TRUE, updated_at = $2
		WHERE user_id = $1 AND phone_number <> '' AND phone_verified = FALSE
	`, userID, now)
	if err != nil {
		return false, fmt.Errorf("failed to confirm phone: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *PostgresCredentialRepository) SetPreferredMethod(ctx context.Context, userID uuid.UUID, method string, now time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE twofa_credentials
		SET preferred_method = $2, updated_at = $3
		WHERE user_id = $1
	`, userID, method, now)
	if err != nil {
		return fmt.Errorf("failed to set preferred method: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCredentialsNotFound
	}
	return nil
}

func (r *PostgresCredentialRepository) SetTwoFactorVerifiedAt(ctx context.Context, userID uuid.UUID, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE twofa_credentials
		SET two_factor_verified_at = $2, updated_at = $2
		WHERE user_id = $1
	`, userID, at)
	if err != nil {
		return fmt.Errorf("failed to set two factor verified time: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCredentialsNotFound
	}
	return nil
}

func (r *PostgresCredentialRepository) ClearAll(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE twofa_credentials
		SET totp_secret_encrypted = '',
			totp_enabled = FALSE,
			phone_number = '',
			phone_verified = FALSE,
			preferred_method = '',
			two_factor_verified_at = NULL,
			updated_at = $2
		WHERE user_id = $1
	`, userID, now)
	if err != nil {
		return false, fmt.Errorf("failed to clear credential record: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *PostgresCredentialRepository) Stats(ctx context.Context) (*CredentialStats, error) {
	stats := &CredentialStats{}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE totp_enabled),
			COUNT(*) FILTER (WHERE phone_verified),
			COUNT(*) FILTER (WHERE totp_enabled OR phone_verified),
			COUNT(*) FILTER (WHERE totp_enabled AND phone_verified),
			COUNT(*) FILTER (WHERE preferred_method = 'totp'),
			COUNT(*) FILTER (WHERE preferred_method = 'sms')
		FROM twofa_credentials
	`).Scan(
		&stats.TotalRecords,
		&stats.TotpEnabled,
		&stats.SmsEnabled,
		&stats.AnyEnabled,
		&stats.BothEnabled,
		&stats.PreferredTotp,
		&stats.PreferredSms,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate credential stats: %w", err)
	}
	return stats, nil
}

// EnsureSchema creates the twofa_credentials table when missing. Text columns
// default to empty string so partial upserts work without explicit values.
func (r *PostgresCredentialRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS twofa_credentials (
			user_id UUID PRIMARY KEY,
			totp_secret_encrypted TEXT NOT NULL DEFAULT '',
			totp_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			phone_number TEXT NOT NULL DEFAULT '',
			phone_verified BOOLEAN NOT NULL DEFAULT FALSE,
			preferred_method TEXT NOT NULL DEFAULT '',
			two_factor_verified_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure twofa_credentials schema: %w", err)
	}
	return nil
}
