package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAuditRepository implements AuditRepository using PostgreSQL.
// Live entries live in audit_event, archived ones in audit_event_archive.
type PostgresAuditRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditRepository creates a new PostgreSQL audit repository
func NewPostgresAuditRepository(pool *pgxpool.Pool) *PostgresAuditRepository {
	return &PostgresAuditRepository{
		pool: pool,
	}
}

// Head returns the latest entry's seq and hash
func (r *PostgresAuditRepository) Head(ctx context.Context) (int64, string, error) {
	query := `
		SELECT seq, entry_hash
		FROM audit_event
		ORDER BY seq DESC
		LIMIT 1
	`

	var seq int64
	var hash string
	err := r.pool.QueryRow(ctx, query).Scan(&seq, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", nil
		}
		return 0, "", fmt.Errorf("failed to read chain head: %w", err)
	}

	return seq, hash, nil
}

// Append inserts the event only while the stored head still matches the
// expected predecessor. The guard and the unique seq constraint together
// make sure two writers cannot both claim the same predecessor.
func (r *PostgresAuditRepository) Append(ctx context.Context, event AuditEvent, expectedPrevSeq int64, expectedPrevHash string) error {
	query := `
		INSERT INTO audit_event (
			id, seq, event_time, user_id, action, success, metadata,
			previous_entry_hash, entry_hash
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
		WHERE COALESCE((SELECT seq FROM audit_event ORDER BY seq DESC LIMIT 1), 0) = $10
		  AND COALESCE((SELECT entry_hash FROM audit_event ORDER BY seq DESC LIMIT 1), '') = $11
	`

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	result, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Seq,
		event.Timestamp,
		event.UserID,
		event.Action,
		event.Success,
		metadata,
		event.PreviousEntryHash,
		event.EntryHash,
		expectedPrevSeq,
		expectedPrevHash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Unique violation on seq: another writer won the race
			return ErrChainConflict
		}
		return fmt.Errorf("failed to append audit event: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrChainConflict
	}

	return nil
}

// GetBySeq returns a single entry, searching archive and live tables
func (r *PostgresAuditRepository) GetBySeq(ctx context.Context, seq int64) (AuditEvent, error) {
	query := `
		SELECT id, seq, event_time, user_id, action, success, metadata,
		       previous_entry_hash, entry_hash
		FROM (
			SELECT id, seq, event_time, user_id, action, success, metadata,
			       previous_entry_hash, entry_hash
			FROM audit_event_archive
			WHERE seq = $1
			UNION ALL
			SELECT id, seq, event_time, user_id, action, success, metadata,
			       previous_entry_hash, entry_hash
			FROM audit_event
			WHERE seq = $1
		) entries
		LIMIT 1
	`

	event, err := r.scanEvent(r.pool.QueryRow(ctx, query, seq))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuditEvent{}, ErrEventNotFound
		}
		return AuditEvent{}, fmt.Errorf("failed to get audit event: %w", err)
	}

	return event, nil
}

// ListRange returns entries with seq in [fromSeq, toSeq], spanning archive and live
func (r *PostgresAuditRepository) ListRange(ctx context.Context, fromSeq, toSeq int64) ([]AuditEvent, error) {
	query := `
		SELECT id, seq, event_time, user_id, action, success, metadata,
		       previous_entry_hash, entry_hash
		FROM (
			SELECT id, seq, event_time, user_id, action, success, metadata,
			       previous_entry_hash, entry_hash
			FROM audit_event_archive
			WHERE seq BETWEEN $1 AND $2
			UNION ALL
			SELECT id, seq, event_time, user_id, action, success, metadata,
			       previous_entry_hash, entry_hash
			FROM audit_event
			WHERE seq BETWEEN $1 AND $2
		) entries
		ORDER BY seq
	`

	return r.queryEvents(ctx, query, fromSeq, toSeq)
}

// ListByTimeRange returns entries with timestamps in [from, to), spanning archive and live
func (r *PostgresAuditRepository) ListByTimeRange(ctx context.Context, from, to time.Time) ([]AuditEvent, error) {
	query := `
		SELECT id, seq, event_time, user_id, action, success, metadata,
		       previous_entry_hash, entry_hash
		FROM (
			SELECT id, seq, event_time, user_id, action, success, metadata,
			       previous_entry_hash, entry_hash
			FROM audit_event_archive
			WHERE event_time >= $1 AND event_time < $2
			UNION ALL
			SELECT id, seq, event_time, user_id, action, success, metadata,
			       previous_entry_hash, entry_hash
			FROM audit_event
			WHERE event_time >= $1 AND event_time < $2
		) entries
		ORDER BY seq
	`

	return r.queryEvents(ctx, query, from, to)
}

// ArchiveBefore moves the contiguous seq prefix of entries older than cutoff
// into audit_event_archive. The chain head always stays live.
func (r *PostgresAuditRepository) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		WITH boundary AS (
			SELECT LEAST(
				COALESCE(
					(SELECT MIN(seq) - 1 FROM audit_event WHERE event_time >= $1),
					(SELECT MAX(seq) FROM audit_event)
				),
				(SELECT MAX(seq) - 1 FROM audit_event)
			) AS max_seq
		), moved AS (
			DELETE FROM audit_event
			WHERE seq <= (SELECT max_seq FROM boundary)
			RETURNING id, seq, event_time, user_id, action, success, metadata,
			          previous_entry_hash, entry_hash
		)
		INSERT INTO audit_event_archive (
			id, seq, event_time, user_id, action, success, metadata,
			previous_entry_hash, entry_hash
		)
		SELECT id, seq, event_time, user_id, action, success, metadata,
		       previous_entry_hash, entry_hash
		FROM moved
	`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to archive audit events: %w", err)
	}

	return int(result.RowsAffected()), nil
}

func (r *PostgresAuditRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]AuditEvent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, event)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", rows.Err())
	}

	return events, nil
}

func (r *PostgresAuditRepository) scanEvent(row pgx.Row) (AuditEvent, error) {
	var event AuditEvent
	var metadata []byte

	err := row.Scan(
		&event.ID,
		&event.Seq,
		&event.Timestamp,
		&event.UserID,
		&event.Action,
		&event.Success,
		&metadata,
		&event.PreviousEntryHash,
		&event.EntryHash,
	)
	if err != nil {
		return AuditEvent{}, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return AuditEvent{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return event, nil
}

// EnsureSchema creates the live and archive audit tables when missing. Both
// share one layout; entries keep their seq and hashes when archived.
func (r *PostgresAuditRepository) EnsureSchema(ctx context.Context) error {
	for _, table := range []string{"audit_event", "audit_event_archive"} {
		_, err := r.pool.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS `+table+` (
				id UUID NOT NULL,
				seq BIGINT PRIMARY KEY,
				event_time TIMESTAMPTZ NOT NULL,
				user_id UUID,
				action TEXT NOT NULL,
				success BOOLEAN NOT NULL,
				metadata JSONB NOT NULL,
				previous_entry_hash TEXT NOT NULL,
				entry_hash TEXT NOT NULL UNIQUE
			)
		`)
		if err != nil {
			return fmt.Errorf("failed to ensure %s schema: %w", table, err)
		}
		_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_`+table+`_time ON `+table+`(event_time)`)
		if err != nil {
			return fmt.Errorf("failed to ensure %s indexes: %w", table, err)
		}
		_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_`+table+`_user ON `+table+`(user_id)`)
		if err != nil {
			return fmt.Errorf("failed to ensure %s indexes: %w", table, err)
		}
	}
	return nil
}
