package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndLast(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	e, err := s.Last(ctx, "570")
	require.NoError(t, err)
	require.Nil(t, e)

	done, err := s.Completed(ctx, "570")
	require.NoError(t, err)
	require.False(t, done)

	require.NoError(t, s.Record(ctx, Entry{AppID: "570", Success: false, Source: "nenhuma"}))
	require.NoError(t, s.Record(ctx, Entry{AppID: "570", Success: true, Source: "Sushi", Details: "2 files"}))
	require.NoError(t, s.Record(ctx, Entry{AppID: "620", Success: false, Source: "nenhuma"}))

	e, err = s.Last(ctx, "570")
	require.NoError(t, err)
	require.NotNil(t, e)
	require.True(t, e.Success)
	require.Equal(t, "Sushi", e.Source)
	require.Equal(t, "2 files", e.Details)
	require.WithinDuration(t, time.Now(), e.CreatedAt, time.Minute)

	done, err = s.Completed(ctx, "570")
	require.NoError(t, err)
	require.True(t, done)

	done, err = s.Completed(ctx, "620")
	require.NoError(t, err)
	require.False(t, done)
}

func TestListAndClear(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.Record(ctx, Entry{AppID: id, Success: true, Source: "git_branch"}))
	}

	entries, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "3", entries[0].AppID)

	require.NoError(t, s.Clear(ctx))
	entries, err = s.List(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRecordRequiresAppID(t *testing.T) {
	s := openTestStore(t)
	require.Error(t, s.Record(context.Background(), Entry{}))
}
