package backupcode

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupBackupCodeService(opts ...Option) (*BackupCodeService, *InMemoryBackupCodeRepository) {
	repo := NewInMemoryBackupCodeRepository()
	opts = append([]Option{WithHashCost(bcrypt.MinCost)}, opts...)
	return NewBackupCodeService(repo, opts...), repo
}

func TestGenerateReturnsFormattedCodes(t *testing.T) {
	service, repo := setupBackupCodeService()
	userID := uuid.New()

	codes, err := service.Generate(context.Background(), userID, 10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.True(t, IsBackupCodeFormat(code), "Generated code %q should read as a backup code", code)
		parts := strings.Split(code, "-")
		require.Len(t, parts, 3, "Code %q should have three groups", code)
		for _, part := range parts {
			assert.Len(t, part, 4)
			for _, r := range part {
				assert.True(t, strings.ContainsRune(codeCharset, r), "Code %q uses a character outside the alphabet", code)
			}
		}
		assert.False(t, seen[code], "Codes within a batch should be distinct")
		seen[code] = true
	}

	stored, err := repo.ListUnused(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, stored, 10)
	for _, record := range stored {
		assert.NotContains(t, codes, record.CodeHash, "Storage should never hold a plaintext code")
		assert.Nil(t, record.ExpiresAt, "Regular batch codes should not expire")
	}
}

func TestGenerateDefaultsTheBatchSize(t *testing.T) {
	service, _ := setupBackupCodeService()

	codes, err := service.Generate(context.Background(), uuid.New(), 0)
	require.NoError(t, err)
	assert.Len(t, codes, DEFAULT_BATCH_SIZE)
}

func TestConsumeAcceptsEachCodeOnce(t *testing.T) {
	service, _ := setupBackupCodeService()
	userID := uuid.New()

	codes, err := service.Generate(context.Background(), userID, 3)
	require.NoError(t, err)

	ok, err := service.Consume(context.Background(), userID, codes[1])
	require.NoError(t, err)
	assert.True(t, ok, "A fresh code should redeem")

	ok, err = service.Consume(context.Background(), userID, codes[1])
	require.NoError(t, err)
	assert.False(t, ok, "A spent code should never redeem again")

	remaining, err := service.CountRemaining(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	ok, err = service.Consume(context.Background(), userID, codes[0])
	require.NoError(t, err)
	assert.True(t, ok, "Other codes in the batch should be unaffected")
}

func TestConsumeNormalizesInput(t *testing.T) {
	service, _ := setupBackupCodeService()
	userID := uuid.New()

	codes, err := service.Generate(context.Background(), userID, 1)
	require.NoError(t, err)

	// Lowercased with spaces instead of dashes, as users tend to type them.
	sloppy := strings.ToLower(strings.ReplaceAll(codes[0], "-", " "))
	ok, err := service.Consume(context.Background(), userID, sloppy)
	require.NoError(t, err)
	assert.True(t, ok, "Case and separators should not matter")
}

func TestConsumeRejectsOtherFormats(t *testing.T) {
	service, _ := setupBackupCodeService()
	userID := uuid.New()

	_, err := service.Generate(context.Background(), userID, 1)
	require.NoError(t, err)

	for _, input := range []string{"", "123456", "12345678", "not-a-code"} {
		ok, err := service.Consume(context.Background(), userID, input)
		require.NoError(t, err)
		assert.False(t, ok, "Input %q should not redeem", input)
	}
}

func TestGenerateReplacesPreviousBatch(t *testing.T) {
	service, _ := setupBackupCodeService()
	userID := uuid.New()

	first, err := service.Generate(context.Background(), userID, 5)
	require.NoError(t, err)

	// Spend one so the regeneration has a used record to leave alone.
	ok, err := service.Consume(context.Background(), userID, first[0])
	require.NoError(t, err)
	require.True(t, ok)

	second, err := service.Generate(context.Background(), userID, 5)
	require.NoError(t, err)

	ok, err = service.Consume(context.Background(), userID, first[1])
	require.NoError(t, err)
	assert.False(t, ok, "Codes from the replaced batch should be dead")

	ok, err = service.Consume(context.Background(), userID, second[0])
	require.NoError(t, err)
	assert.True(t, ok, "Codes from the new batch should redeem")

	remaining, err := service.CountRemaining(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 4, remaining, "Only the new batch should count")
}

func TestEmergencyCodes(t *testing.T) {
	current := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	service, _ := setupBackupCodeService(WithClock(func() time.Time { return current }))
	userID := uuid.New()

	regular, err := service.Generate(context.Background(), userID, 10)
	require.NoError(t, err)

	batch, err := service.GenerateEmergency(context.Background(), userID, 2, 4*time.Hour)
	require.NoError(t, err)
	require.Len(t, batch.Codes, 2)
	assert.Equal(t, current.Add(4*time.Hour), batch.ExpiresAt)

	t.Run("issuance leaves the regular batch alone", func(t *testing.T) {
		remaining, err := service.CountRemaining(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, 12, remaining)

		ok, err := service.Consume(context.Background(), userID, regular[0])
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("usable until expiry", func(t *testing.T) {
		current = current.Add(3 * time.Hour)

		ok, err := service.Consume(context.Background(), userID, batch.Codes[0])
		require.NoError(t, err)
		assert.True(t, ok, "An emergency code should redeem before its expiry")
	})

	t.Run("expired codes never match", func(t *testing.T) {
		current = current.Add(2 * time.Hour)

		ok, err := service.Consume(context.Background(), userID, batch.Codes[1])
		require.NoError(t, err)
		assert.False(t, ok, "An emergency code should be dead past its expiry")

		remaining, err := service.CountRemaining(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, 9, remaining, "Expired emergency codes should not count as usable")
	})
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	service, _ := setupBackupCodeService()
	userID := uuid.New()

	codes, err := service.Generate(context.Background(), userID, 1)
	require.NoError(t, err)

	const consumers = 50
	results := make(chan bool, consumers)
	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := service.Consume(context.Background(), userID, codes[0])
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for ok := range results {
		if ok {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "Exactly one concurrent consumer should win the code")
}

func TestInvalidateAll(t *testing.T) {
	service, _ := setupBackupCodeService()
	userID := uuid.New()

	codes, err := service.Generate(context.Background(), userID, 5)
	require.NoError(t, err)
	_, err = service.GenerateEmergency(context.Background(), userID, 2, time.Hour)
	require.NoError(t, err)

	deleted, err := service.InvalidateAll(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 7, deleted, "Regular and emergency codes should all go")

	ok, err := service.Consume(context.Background(), userID, codes[0])
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := service.CountRemaining(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestIsBackupCodeFormat(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"XHJM-29QD-LWTK", true},
		{"xhjm 29qd lwtk", true},
		{"XHJM29QDLWTK", true},
		{"", false},
		{"123456", false},
		{"12345678", false},
		{"XHJM-29QD", false},
		{"XHJM-29QD-LWT0", false},
		{"XHJM-29QD-LWTI", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, IsBackupCodeFormat(tc.input), "IsBackupCodeFormat(%q)", tc.input)
	}
}

func TestFileRepositoryPersistsUsage(t *testing.T) {
	dir := t.TempDir()
	userID := uuid.New()

	repo, err := NewFileBackupCodeRepository(dir)
	require.NoError(t, err)
	service := NewBackupCodeService(repo, WithHashCost(bcrypt.MinCost))

	codes, err := service.Generate(context.Background(), userID, 3)
	require.NoError(t, err)
	ok, err := service.Consume(context.Background(), userID, codes[0])
	require.NoError(t, err)
	require.True(t, ok)

	reloadedRepo, err := NewFileBackupCodeRepository(dir)
	require.NoError(t, err)
	reloaded := NewBackupCodeService(reloadedRepo, WithHashCost(bcrypt.MinCost))

	ok, err = reloaded.Consume(context.Background(), userID, codes[0])
	require.NoError(t, err)
	assert.False(t, ok, "Usage should survive a reload")

	ok, err = reloaded.Consume(context.Background(), userID, codes[1])
	require.NoError(t, err)
	assert.True(t, ok, "Unused codes should survive a reload")

	remaining, err := reloaded.CountRemaining(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}
