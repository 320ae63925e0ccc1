package store

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Guliveer/steam-gameloader-go/internal/cache"
	"github.com/Guliveer/steam-gameloader-go/internal/httpclient"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
)

const appDetailsBody = `{
  "620": {"success": true, "data": {
    "type": "game", "name": "Portal 2", "steam_appid": 620,
    "header_image": "https://cdn/620.jpg",
    "developers": ["Valve"],
    "categories": [{"id": 2, "description": "Single-player"}],
    "genres": [{"id": "1", "description": "Action"}],
    "screenshots": [{"path_full": "https://cdn/s1.jpg"}],
    "movies": [{"webm": {"480": "a", "max": "https://cdn/m.webm"}}],
    "recommendations": {"total": 300000},
    "dlc": [323180, 323180, 323181],
    "pc_requirements": {"minimum": "x"},
    "mac_requirements": []
  }},
  "1": {"success": false}
}`

const searchBody = `{"total": 2, "items": [
  {"id": 620, "name": "Portal 2", "type": "app",
   "price": {"currency": "BRL", "initial": 3699, "final": 1849, "discount_percent": 50},
   "platforms": {"windows": true, "mac": true, "linux": true},
   "tiny_image": "https://cdn/tiny.jpg", "metascore": "95"},
  {"id": 400, "name": "Portal", "type": "app",
   "platforms": {"windows": true}}
]}`

type fakeStore struct {
	detailCalls atomic.Int32
	searchCalls atomic.Int32
	failSearch  atomic.Bool
}

func (f *fakeStore) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/appdetails", func(w http.ResponseWriter, r *http.Request) {
		f.detailCalls.Add(1)
		id := r.URL.Query().Get("appids")
		if id == "620" || id == "1" {
			fmt.Fprint(w, appDetailsBody)
			return
		}
		fmt.Fprintf(w, `{"%s": {"success": false}}`, id)
	})
	mux.HandleFunc("/api/storesearch", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		if f.failSearch.Load() {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, searchBody)
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeStore, *cache.TTL[[]SearchResult]) {
	t.Helper()
	fake := &fakeStore{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	fetcher := httpclient.New(nil, httpclient.WithBackoff(time.Millisecond), httpclient.WithTimeout(2*time.Second))
	c := New(fetcher, cache.NewMemoryStore(), Config{BaseURL: srv.URL + "/api"}, logger.Nop())
	return c, fake, c.search
}

func TestAppDetails(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	data, err := c.AppDetails(ctx, "620", "")
	require.NoError(t, err)
	require.Equal(t, "Portal 2", data.Name)
	require.Equal(t, []string{"323180", "323181"}, data.DLCIDs())

	_, err = c.AppDetails(ctx, "1", "")
	require.ErrorIs(t, err, ErrAppNotFound)

	_, err = c.AppDetails(ctx, "abc", "")
	require.Error(t, err)
}

func TestAppNameCaches(t *testing.T) {
	c, fake, _ := newTestClient(t)
	ctx := context.Background()

	name, cached := c.AppName(ctx, "620")
	require.Equal(t, "Portal 2", name)
	require.False(t, cached)

	name, cached = c.AppName(ctx, "620")
	require.Equal(t, "Portal 2", name)
	require.True(t, cached)
	require.Equal(t, int32(1), fake.detailCalls.Load())

	name, cached = c.AppName(ctx, "999")
	require.Equal(t, "AppID 999", name)
	require.False(t, cached)

	_, ok := c.NamesCached(ctx, "999")
	require.False(t, ok)
}

func TestSearch(t *testing.T) {
	c, fake, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Search(ctx, " p ", 10)
	require.ErrorIs(t, err, ErrQueryTooShort)

	results, err := c.Search(ctx, "Portal", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	require.Equal(t, "620", first.AppID)
	require.Equal(t, "R$ 18,49", first.Price.Formatted)
	require.Equal(t, 3699, first.Price.Original)
	require.Equal(t, "Windows • macOS • Linux", first.PlatformsFormatted)
	require.Equal(t, 95, first.MetacriticScore)
	require.Equal(t, "https://cdn/tiny.jpg", first.HeaderImage)
	require.False(t, first.IsFree)
	require.True(t, results[1].IsFree)
	require.Equal(t, "Gratuito", results[1].Price.Formatted)

	_, err = c.Search(ctx, "portal", 10)
	require.NoError(t, err)
	require.Equal(t, int32(1), fake.searchCalls.Load())
}

func TestSearchServesStaleOnFailure(t *testing.T) {
	c, fake, search := newTestClient(t)
	ctx := context.Background()

	base := time.Now()
	search.SetClock(func() time.Time { return base })
	_, err := c.Search(ctx, "Portal", 10)
	require.NoError(t, err)

	search.SetClock(func() time.Time { return base.Add(2 * time.Hour) })
	fake.failSearch.Store(true)

	results, err := c.Search(ctx, "Portal", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, int32(2), fake.searchCalls.Load())

	_, err = c.Search(ctx, "Half-Life", 10)
	require.Error(t, err)
}

func TestGameDetails(t *testing.T) {
	c, _, _ := newTestClient(t)

	d, err := c.GameDetails(context.Background(), "620")
	require.NoError(t, err)
	require.Equal(t, []string{"Single-player"}, d.Categories)
	require.Equal(t, []string{"Action"}, d.Genres)
	require.Equal(t, []string{"https://cdn/s1.jpg"}, d.Screenshots)
	require.Equal(t, []string{"https://cdn/m.webm"}, d.Movies)
	require.Equal(t, 300000, d.Recommendations)
	require.True(t, strings.HasSuffix(d.StoreURL, "/app/620"))
}

func TestPing(t *testing.T) {
	c, fake, _ := newTestClient(t)
	require.True(t, c.Ping(context.Background()))
	fake.failSearch.Store(true)
	require.False(t, c.Ping(context.Background()))
}
