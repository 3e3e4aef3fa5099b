package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omen-systems/omen/internal/domain"
)

func storedSignal(n int, status domain.Status) domain.OmenSignal {
	return domain.OmenSignal{
		SignalID:       fmt.Sprintf("OMEN-%03d", n),
		Title:          "Red Sea shipping disruption",
		Status:         status,
		InputEventHash: fmt.Sprintf("hash-%03d", n),
		GeneratedAt:    time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute),
	}
}

func TestMemoryRepo_InsertAndLookup(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, storedSignal(1, domain.StatusActive)))

	got, err := repo.GetByID(ctx, "OMEN-001")
	require.NoError(t, err)
	assert.Equal(t, "OMEN-001", got.SignalID)

	byHash, err := repo.FindByInputHash(ctx, "hash-001")
	require.NoError(t, err)
	assert.Equal(t, "OMEN-001", byHash.SignalID)

	_, err = repo.GetByID(ctx, "OMEN-404")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindByInputHash(ctx, "hash-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepo_DuplicateIDRejected(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, storedSignal(1, domain.StatusActive)))
	err := repo.Insert(ctx, storedSignal(1, domain.StatusActive))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindDuplicate))
}

func TestMemoryRepo_ListPagination(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, repo.Insert(ctx, storedSignal(i, domain.StatusActive)))
	}

	page, err := repo.List(ctx, ListQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "OMEN-005", page.Items[0].SignalID, "newest first")
	assert.Equal(t, "OMEN-004", page.Items[1].SignalID)

	page, err = repo.List(ctx, ListQuery{Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "OMEN-003", page.Items[0].SignalID)

	page, err = repo.List(ctx, ListQuery{Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.Cursor)
}

func TestMemoryRepo_ListStatusFilter(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, storedSignal(1, domain.StatusActive)))
	require.NoError(t, repo.Insert(ctx, storedSignal(2, domain.StatusResolved)))
	require.NoError(t, repo.Insert(ctx, storedSignal(3, domain.StatusActive)))

	page, err := repo.List(ctx, ListQuery{Status: domain.StatusActive})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	for _, sig := range page.Items {
		assert.Equal(t, domain.StatusActive, sig.Status)
	}

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
