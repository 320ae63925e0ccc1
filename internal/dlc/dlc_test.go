package dlc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/steam-gameloader-go/internal/cache"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/luaplugin"
	"github.com/Guliveer/steam-gameloader-go/internal/steam"
	"github.com/Guliveer/steam-gameloader-go/internal/store"
)

type fakeCatalog struct {
	mu    sync.Mutex
	apps  map[string]*store.AppData
	calls int
	down  bool
}

func (f *fakeCatalog) AppDetails(_ context.Context, appid, _ string) (*store.AppData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if a, ok := f.apps[appid]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", store.ErrAppNotFound, appid)
}

func (f *fakeCatalog) Ping(context.Context) bool { return !f.down }

func newCatalog() *fakeCatalog {
	return &fakeCatalog{apps: map[string]*store.AppData{
		"100": {Name: "Base Game", DLC: []json.Number{"201", "202", "203", "204", "202", "205"}},
		"201": {Name: "Extra Campaign", Type: "dlc", PriceOverview: &store.Price{FinalFormatted: "R$ 10,00", InitialFormatted: "R$ 20,00", DiscountPercent: 50}},
		"202": {Name: "Original Soundtrack", Type: "dlc"},
		"203": {Name: "Digital Artbook", Type: "dlc"},
		"204": {Name: "Hosted Costumes", Type: "dlc", IsFree: true},
		// 205 is missing from the store
		"300": {Name: "No DLC Game"},
	}}
}

type fixture struct {
	fs      afero.Fs
	catalog *fakeCatalog
	plugin  *luaplugin.Store
	mgr     *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	layout := steam.NewLayout("/steam")
	require.NoError(t, afero.WriteFile(fs, "/steam/steamapps/appmanifest_100.acf",
		[]byte("\"AppState\"\n{\n\t\"appid\"\t\"100\"\n\t\"name\"\t\"Base Game\"\n\t\"installdir\"\t\"Base\"\n}\n"), 0o644))

	catalog := newCatalog()
	plugin := luaplugin.NewStore(fs, luaplugin.StaticPath(layout.SteamtoolsLua()))
	apps := func(context.Context) ([]steam.InstalledApp, error) { return steam.InstalledApps(fs, layout) }
	hasFix := func(path, _ string) bool { return path != "" }

	mgr := NewManager(catalog, plugin, apps, hasFix, cache.NewMemoryStore(), Config{}, logger.Nop())
	return &fixture{fs: fs, catalog: catalog, plugin: plugin, mgr: mgr}
}

func TestIsValidName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"Extra Campaign", true},
		{"Original Soundtrack", false},
		{"Game OST", false},
		{"Hosted Costumes", true},
		{"Digital Art Book", false},
		{"Official Strategy Guide", false},
		{"Season Pass", false},
		{"Complete Bundle", false},
		{"Weapon Pack", false},
		{"Digital Comic", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.valid, IsValidName(tt.name))
		})
	}
}

func TestListFiltersAndMarksInstalled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.plugin.Add(ctx, []string{"204"})
	require.NoError(t, err)

	dlcs, err := f.mgr.List(ctx, "100")
	require.NoError(t, err)
	require.Len(t, dlcs, 2)

	require.Equal(t, "201", dlcs[0].ID)
	require.Equal(t, "R$ 10,00", dlcs[0].Price)
	require.Equal(t, "R$ 20,00", dlcs[0].OriginalPrice)
	require.Equal(t, 50, dlcs[0].DiscountPercent)
	require.False(t, dlcs[0].Installed)

	require.Equal(t, "204", dlcs[1].ID)
	require.Equal(t, "N/A", dlcs[1].Price)
	require.True(t, dlcs[1].Installed)

	calls := f.catalog.calls
	_, err = f.mgr.List(ctx, "100")
	require.NoError(t, err)
	require.Equal(t, calls, f.catalog.calls, "second list must come from cache")
}

func TestListWithoutDLCs(t *testing.T) {
	f := newFixture(t)
	dlcs, err := f.mgr.List(context.Background(), "300")
	require.NoError(t, err)
	require.Empty(t, dlcs)

	_, err = f.mgr.List(context.Background(), "999")
	require.ErrorIs(t, err, store.ErrAppNotFound)
}

func TestInstallAndUninstall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Install(ctx, "100", nil)
	require.ErrorIs(t, err, ErrNoDLCSelected)

	res, err := f.mgr.Install(ctx, "100", []string{"201", "204"})
	require.NoError(t, err)
	require.Equal(t, 2, res.Installed)

	res, err = f.mgr.Install(ctx, "100", []string{"201"})
	require.NoError(t, err)
	require.Zero(t, res.Installed)

	data, err := afero.ReadFile(f.fs, "/steam/config/stplug-in/Steamtools.lua")
	require.NoError(t, err)
	require.Equal(t, "addappid(201, 1)\naddappid(204, 1)\n", string(data))

	un, err := f.mgr.Uninstall(ctx, "100", []string{"201"})
	require.NoError(t, err)
	require.Equal(t, 1, un.Removed)

	installed, err := f.mgr.Installed(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"204"}, installed)

	un, err = f.mgr.Uninstall(ctx, "100", nil)
	require.NoError(t, err)
	require.Equal(t, 1, un.Removed)
}

func TestUninstallAllKeepsOtherGames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.plugin.Add(ctx, []string{"201", "990001", "203"})
	require.NoError(t, err)

	un, err := f.mgr.Uninstall(ctx, "100", nil)
	require.NoError(t, err)
	require.Equal(t, 2, un.Removed)

	installed, err := f.mgr.Installed(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"990001"}, installed)

	un, err = f.mgr.Uninstall(ctx, "300", nil)
	require.NoError(t, err)
	require.Zero(t, un.Removed)

	installed, err = f.mgr.Installed(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"990001"}, installed)
}

func TestInstallInvalidatesCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	games, _, err := f.mgr.Games(ctx, false)
	require.NoError(t, err)
	require.Len(t, games, 1)
	require.False(t, games[0].HasDLC)

	_, err = f.mgr.Install(ctx, "100", []string{"201"})
	require.NoError(t, err)

	games, fromCache, err := f.mgr.Games(ctx, false)
	require.NoError(t, err)
	require.False(t, fromCache)
	require.True(t, games[0].HasDLC)
	require.Equal(t, 1, games[0].InstalledDLCCount)
	require.True(t, games[0].HasFix)
}

func TestSearchAndSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	found, err := f.mgr.Search(ctx, "100", "costume")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "204", found[0].ID)

	_, err = f.mgr.Install(ctx, "100", []string{"204"})
	require.NoError(t, err)

	s, err := f.mgr.Summary(ctx, "100")
	require.NoError(t, err)
	require.Equal(t, 2, s.AvailableDLCs)
	require.Equal(t, 1, s.InstalledDLCs)
	require.Equal(t, []string{"204"}, s.InstalledDLCIDs)

	_, err = f.mgr.Summary(ctx, "300")
	require.ErrorIs(t, err, ErrGameNotFound)
}

func TestStatusAndHealth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.List(ctx, "100")
	require.NoError(t, err)

	st := f.mgr.Status(ctx)
	require.Empty(t, st.Error)
	require.Equal(t, 1, st.TotalGames)
	require.Equal(t, 1, st.DLCCacheSize)
	require.Equal(t, 2, st.TotalDLCsCached)

	require.NoError(t, f.mgr.ClearCache(ctx))
	require.Zero(t, f.mgr.Status(ctx).DLCCacheSize)

	h := f.mgr.Health(ctx)
	require.True(t, h.Healthy)

	f.catalog.down = true
	h = f.mgr.Health(ctx)
	require.False(t, h.Healthy)
	require.Equal(t, "unreachable", h.Checks["store"])
}
