package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDatabase(t *testing.T) (*PostgresAuditRepository, func()) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("stepup_db"),
		postgres.WithUsername("stepup"),
		postgres.WithPassword("pwd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	poolConfig, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)

	repo := NewPostgresAuditRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return repo, cleanup
}

func TestPostgresAuditRepository(t *testing.T) {
	ctx := context.Background()

	repo, cleanup := setupTestDatabase(t)
	defer cleanup()

	seq, hash, err := repo.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
	assert.Equal(t, "", hash)

	service := NewAuditService(repo)
	userID := uuid.NullUUID{UUID: uuid.New(), Valid: true}

	var events []*AuditEvent
	for i := 0; i < 5; i++ {
		event, err := service.Record(ctx, RecordParams{
			UserID:  userID,
			Action:  ACTION_FAILED_ATTEMPT,
			Success: false,
			Metadata: EventMetadata{
				IP:     "198.51.100.7",
				Method: "totp",
				Extra:  map[string]string{"attempt": fmt.Sprintf("%d", i+1)},
			},
		})
		require.NoError(t, err)
		events = append(events, event)
	}

	seq, hash, err = repo.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), seq)
	assert.Equal(t, events[4].EntryHash, hash)

	t.Run("GetBySeq", func(t *testing.T) {
		stored, err := repo.GetBySeq(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, events[2].ID, stored.ID)
		assert.Equal(t, events[2].EntryHash, stored.EntryHash)
		assert.Equal(t, userID, stored.UserID)
		assert.Equal(t, "198.51.100.7", stored.Metadata.IP)
		assert.Equal(t, "3", stored.Metadata.Extra["attempt"])

		_, err = repo.GetBySeq(ctx, 99)
		assert.ErrorIs(t, err, ErrEventNotFound)
	})

	t.Run("StaleHeadConflicts", func(t *testing.T) {
		event := AuditEvent{
			ID:                uuid.New(),
			Seq:               6,
			Timestamp:         time.Now().UTC().Truncate(time.Microsecond),
			Action:            ACTION_SETUP,
			Success:           true,
			PreviousEntryHash: events[1].EntryHash,
		}
		event.EntryHash = ComputeEntryHash(event)

		err := repo.Append(ctx, event, 2, events[1].EntryHash)
		assert.ErrorIs(t, err, ErrChainConflict)
	})

	t.Run("DuplicateSeqConflicts", func(t *testing.T) {
		event := AuditEvent{
			ID:                uuid.New(),
			Seq:               5,
			Timestamp:         time.Now().UTC().Truncate(time.Microsecond),
			Action:            ACTION_SETUP,
			Success:           true,
			PreviousEntryHash: events[3].EntryHash,
		}
		event.EntryHash = ComputeEntryHash(event)

		err := repo.Append(ctx, event, 5, events[4].EntryHash)
		assert.ErrorIs(t, err, ErrChainConflict)
	})

	t.Run("ListRange", func(t *testing.T) {
		listed, err := repo.ListRange(ctx, 2, 4)
		require.NoError(t, err)
		require.Len(t, listed, 3)
		assert.Equal(t, int64(2), listed[0].Seq)
		assert.Equal(t, int64(4), listed[2].Seq)
	})

	t.Run("StoredChainVerifies", func(t *testing.T) {
		report, err := service.VerifyChainIntegrity(ctx, 1, 0)
		require.NoError(t, err)
		assert.True(t, report.Valid)
		assert.Equal(t, 5, report.Checked)
	})

	t.Run("ArchiveBefore", func(t *testing.T) {
		// Everything is older than the cutoff; the head must stay live.
		moved, err := repo.ArchiveBefore(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 4, moved)

		seq, hash, err := repo.Head(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(5), seq)
		assert.Equal(t, events[4].EntryHash, hash)

		archived, err := repo.GetBySeq(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, events[0].EntryHash, archived.EntryHash)

		listed, err := repo.ListRange(ctx, 1, 5)
		require.NoError(t, err)
		assert.Len(t, listed, 5)

		moved, err = repo.ArchiveBefore(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, moved)
	})

	t.Run("ChainContinuesAfterArchival", func(t *testing.T) {
		event, err := service.Record(ctx, RecordParams{
			UserID:  userID,
			Action:  ACTION_SUCCESSFUL_AUTH,
			Success: true,
			Metadata: EventMetadata{
				IP:     "198.51.100.7",
				Method: "totp",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(6), event.Seq)
		assert.Equal(t, events[4].EntryHash, event.PreviousEntryHash)

		report, err := service.VerifyChainIntegrity(ctx, 1, 0)
		require.NoError(t, err)
		assert.True(t, report.Valid)
		assert.Equal(t, 6, report.Checked)
	})

	t.Run("ListByTimeRange", func(t *testing.T) {
		from := events[0].Timestamp.Add(-time.Minute)
		listed, err := repo.ListByTimeRange(ctx, from, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, listed, 6)
	})
}
