package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack/golang-shortlink-service/internal/model"
)

func newTestRecord(code string, expiresIn time.Duration) *model.ShortcodeRecord {
	now := time.Now()
	return &model.ShortcodeRecord{
		Code:         code,
		TargetURL:    "https://example.com/page",
		CreatedAt:    now,
		ExpiresAt:    now.Add(expiresIn),
		ClickHistory: []model.ClickEvent{},
	}
}

func TestMemoryRepository_InsertAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	record := newTestRecord("abc12345", time.Hour)
	require.NoError(t, repo.InsertRecord(ctx, record))
	assert.NotEmpty(t, record.ID)
	assert.True(t, record.IsActive)

	got, err := repo.GetByCode(ctx, "abc12345")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", got.TargetURL)

	_, err = repo.GetByCode(ctx, "missing")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestMemoryRepository_DuplicateInsert(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.InsertRecord(ctx, newTestRecord("abc12345", time.Hour)))
	err := repo.InsertRecord(ctx, newTestRecord("abc12345", time.Hour))
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestMemoryRepository_CodeExists_IncludesInactive(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.InsertRecord(ctx, newTestRecord("abc12345", time.Hour)))
	require.NoError(t, repo.Deactivate(ctx, "abc12345"))

	exists, err := repo.CodeExists(ctx, "abc12345")
	require.NoError(t, err)
	assert.True(t, exists, "deactivated codes stay reserved")
}

func TestMemoryRepository_RecordClick(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.InsertRecord(ctx, newTestRecord("abc12345", time.Hour)))

	event := model.ClickEvent{Timestamp: time.Now(), Referrer: "Direct"}
	require.NoError(t, repo.RecordClick(ctx, "abc12345", event))

	got, err := repo.GetByCode(ctx, "abc12345")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ClickCount)
	assert.Len(t, got.ClickHistory, 1)
}

func TestMemoryRepository_RecordClick_NotResolvable(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	event := model.ClickEvent{Timestamp: time.Now(), Referrer: "Direct"}

	t.Run("missing", func(t *testing.T) {
		err := repo.RecordClick(ctx, "missing", event)
		assert.ErrorIs(t, err, ErrCodeNotFound)
	})

	t.Run("expired", func(t *testing.T) {
		require.NoError(t, repo.InsertRecord(ctx, newTestRecord("expired1", -time.Second)))
		err := repo.RecordClick(ctx, "expired1", event)
		assert.ErrorIs(t, err, ErrCodeNotFound)
	})

	t.Run("deactivated", func(t *testing.T) {
		require.NoError(t, repo.InsertRecord(ctx, newTestRecord("gone1234", time.Hour)))
		require.NoError(t, repo.Deactivate(ctx, "gone1234"))
		err := repo.RecordClick(ctx, "gone1234", event)
		assert.ErrorIs(t, err, ErrCodeNotFound)
	})
}

func TestMemoryRepository_ConcurrentClicks(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.InsertRecord(ctx, newTestRecord("abc12345", time.Hour)))

	const clicks = 250

	var wg sync.WaitGroup
	wg.Add(clicks)
	for i := 0; i < clicks; i++ {
		go func() {
			defer wg.Done()
			_ = repo.RecordClick(ctx, "abc12345", model.ClickEvent{Timestamp: time.Now(), Referrer: "Direct"})
		}()
	}
	wg.Wait()

	got, err := repo.GetByCode(ctx, "abc12345")
	require.NoError(t, err)
	assert.Equal(t, int64(clicks), got.ClickCount, "no click may be lost")
	assert.Len(t, got.ClickHistory, model.MaxClickHistory)
}

func TestMemoryRepository_Deactivate(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.InsertRecord(ctx, newTestRecord("abc12345", time.Hour)))

	require.NoError(t, repo.Deactivate(ctx, "abc12345"))
	// Idempotent: matching is by existence, not by the active flag.
	require.NoError(t, repo.Deactivate(ctx, "abc12345"))

	got, err := repo.GetByCode(ctx, "abc12345")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, repo.Deactivate(ctx, "missing"), ErrCodeNotFound)
}

func TestMemoryRepository_DeactivateExpired(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.InsertRecord(ctx, newTestRecord("live1234", time.Hour)))
	require.NoError(t, repo.InsertRecord(ctx, newTestRecord("dead1234", -time.Minute)))
	require.NoError(t, repo.InsertRecord(ctx, newTestRecord("dead5678", -time.Second)))

	codes, err := repo.DeactivateExpired(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dead1234", "dead5678"}, codes)

	// Idempotent: a second sweep finds nothing.
	codes, err = repo.DeactivateExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, codes)

	live, err := repo.GetByCode(ctx, "live1234")
	require.NoError(t, err)
	assert.True(t, live.IsActive)
}
