package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ctscan/internal/domain/entity"
	"ctscan/internal/domain/port"
)

func TestMemorySessionRepository_SaveGetDelete(t *testing.T) {
	repo := NewMemorySessionRepository(10, time.Hour)
	ctx := context.Background()

	_, err := repo.Get(ctx, "a")
	require.ErrorIs(t, err, port.ErrSessionNotFound)

	s := entity.NewSession("a", time.Now())
	require.NoError(t, repo.Save(ctx, s))

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	require.Same(t, s, got)

	require.NoError(t, repo.Delete(ctx, "a"))
	_, err = repo.Get(ctx, "a")
	require.ErrorIs(t, err, port.ErrSessionNotFound)
}

func TestMemorySessionRepository_EvictsOldest(t *testing.T) {
	repo := NewMemorySessionRepository(2, 0)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(ctx, entity.NewSession(id, time.Now())))
	}

	require.Equal(t, 2, repo.Len())
	_, err := repo.Get(ctx, "a")
	require.ErrorIs(t, err, port.ErrSessionNotFound)
	_, err = repo.Get(ctx, "c")
	require.NoError(t, err)
}

func TestMemorySessionRepository_Isolation(t *testing.T) {
	repo := NewMemorySessionRepository(10, time.Hour)
	ctx := context.Background()

	a := entity.NewSession("a", time.Now())
	b := entity.NewSession("b", time.Now())
	require.NoError(t, repo.Save(ctx, a.WithHistory(a.History.Append(entity.HistoryRecord{Verdict: entity.VerdictPositive}))))
	require.NoError(t, repo.Save(ctx, b))

	gotA, _ := repo.Get(ctx, "a")
	gotB, _ := repo.Get(ctx, "b")
	require.Equal(t, 1, gotA.History.Len())
	require.Equal(t, 0, gotB.History.Len())
}
