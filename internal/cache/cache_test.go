package cache

import (
	"context"
	"testing"
	"time"

	"github.com/Guliveer/steam-gameloader-go/internal/jsonutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type searchEntry struct {
	Results []string `json:"results"`
	Count   int      `json:"count"`
}

func TestTTLBoundary(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		age   time.Duration
		fresh bool
	}{
		{"just stored", 0, true},
		{"one second before expiry", 3599 * time.Second, true},
		{"exactly at ttl", 3600 * time.Second, false},
		{"past ttl", 2 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewTTL[searchEntry](NewMemoryStore(), "search_cache", time.Hour)
			c.SetClock(func() time.Time { return base })
			require.NoError(t, c.Set(ctx, "portal", searchEntry{Results: []string{"620"}, Count: 1}))

			c.SetClock(func() time.Time { return base.Add(tt.age) })
			got, ok := c.Get(ctx, "portal")
			require.Equal(t, tt.fresh, ok)
			if tt.fresh {
				require.Equal(t, 1, got.Count)
			}

			stale, storedAt, ok := c.GetStale(ctx, "portal")
			require.True(t, ok)
			require.Equal(t, base, storedAt)
			require.Equal(t, []string{"620"}, stale.Results)
		})
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(afero.NewMemMapFs(), "/data/cache"),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			c := NewTTL[map[string]string](store, "download_cache", 24*time.Hour)

			_, ok := c.Get(ctx, "570")
			require.False(t, ok)

			require.NoError(t, c.Set(ctx, "570", map[string]string{"source": "Sadie"}))
			require.NoError(t, c.Set(ctx, "620", map[string]string{"source": "Ryuu"}))

			got, ok := c.Get(ctx, "570")
			require.True(t, ok)
			require.Equal(t, "Sadie", got["source"])

			require.NoError(t, c.Delete(ctx, "570"))
			_, ok = c.Get(ctx, "570")
			require.False(t, ok)
			_, ok = c.Get(ctx, "620")
			require.True(t, ok)

			require.NoError(t, c.Clear(ctx))
			_, ok = c.Get(ctx, "620")
			require.False(t, ok)
			require.NoError(t, c.Clear(ctx))
		})
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	first := NewTTL[string](NewFileStore(fs, "/cache"), "steam_games_cache", time.Hour)
	require.NoError(t, first.Set(ctx, "570", "Dota 2"))

	exists, err := afero.Exists(fs, "/cache/steam_games_cache.json")
	require.NoError(t, err)
	require.True(t, exists)

	second := NewTTL[string](NewFileStore(fs, "/cache"), "steam_games_cache", time.Hour)
	got, ok := second.Get(ctx, "570")
	require.True(t, ok)
	require.Equal(t, "Dota 2", got)
}

func TestFileStoreIgnoresCorruptDocument(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cache/search_cache.json", []byte("garbage"), 0o644))

	c := NewTTL[string](NewFileStore(fs, "/cache"), "search_cache", time.Hour)
	_, ok := c.Get(ctx, "x")
	require.False(t, ok)
	require.NoError(t, c.Set(ctx, "x", "y"))
	got, ok := c.Get(ctx, "x")
	require.True(t, ok)
	require.Equal(t, "y", got)
}

func TestFileStorePrunesExpiredRecords(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	c := NewTTL[string](NewFileStore(fs, "/cache"), "api_check_cache", time.Hour)
	c.SetClock(func() time.Time { return now })
	require.NoError(t, c.Set(ctx, "old", "a"))
	require.NoError(t, c.Set(ctx, "recent", "b"))

	now = now.Add(time.Hour + staleRetention + time.Minute)
	require.NoError(t, c.Set(ctx, "new", "c"))

	var doc map[string]Record
	require.NoError(t, jsonutil.ReadFile(fs, "/cache/api_check_cache.json", &doc))
	require.Len(t, doc, 1)
	require.Contains(t, doc, "new")

	_, _, ok := c.GetStale(ctx, "old")
	require.False(t, ok)
}

func TestRedisKey(t *testing.T) {
	require.Equal(t, "gameloader:search_cache:portal 2", getKey("search_cache", "portal 2"))
}
