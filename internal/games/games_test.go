package games

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/steam-gameloader-go/internal/cache"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/steam"
)

type fakeNames struct {
	mu     sync.Mutex
	names  map[string]string
	cached map[string]bool
	calls  int
}

func (f *fakeNames) AppName(_ context.Context, appid string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if n, ok := f.names[appid]; ok {
		return n, f.cached[appid]
	}
	return "AppID " + appid, false
}

const root = "/steam"

var mainScript = "-- unlock script\n" +
	"addappid(1234567)\n" +
	"addappid(1234568, 1, \"5e1a2b3c4d5e6f708192a3b4c5d6e7f8\")\n" +
	"setManifestid(1234568, \"7412589630214789635\")\n"

type fixture struct {
	fs    afero.Fs
	names *fakeNames
	mgr   *Manager
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	plugin := steam.NewLayout(root).PluginDir()
	files := map[string]string{
		"1234567.lua": mainScript,
		"98765.lua":   strings.Repeat("-- padding line\n", 100),
		"123.lua":     strings.Repeat("x", 200),
		"abcde.lua":   strings.Repeat("x", 200),
		"55555.lua":   "addappid(55555)\n",
		"notes.txt":   strings.Repeat("x", 200),
	}
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(plugin, name), []byte(content), 0o644))
	}

	names := &fakeNames{
		names:  map[string]string{"1234567": "Portal Deluxe", "98765": "Hollow Depths"},
		cached: map[string]bool{"1234567": true},
	}
	layout := func(context.Context) (steam.Layout, error) { return steam.NewLayout(root), nil }
	hasFix := func(path, appid string) bool {
		ok, _ := afero.Exists(fs, filepath.Join(path, "luatools-fix-log-"+appid+".log"))
		return ok
	}
	mgr := NewManager(fs, layout, names, hasFix, cache.NewMemoryStore(), Config{
		BackupDir:        "/backups",
		RemovalBackupDir: "/removed",
	}, logger.Nop())

	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	mgr.now = func() time.Time { return now }
	return &fixture{fs: fs, names: names, mgr: mgr, now: now}
}

func TestDetectFiltersAndNames(t *testing.T) {
	f := newFixture(t)

	res, err := f.mgr.Detect(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalGames)
	require.Len(t, res.Games, 2)

	first := res.Games[0]
	assert.Equal(t, "1234567", first.AppID)
	assert.Equal(t, "Portal Deluxe", first.Name)
	assert.Equal(t, "Portal Deluxe", first.RealName)
	assert.True(t, first.NameFromCache)
	assert.Equal(t, "lua", first.Type)
	assert.Equal(t, "1234567.lua", first.FileName)
	assert.True(t, first.IsValid)
	assert.Equal(t, 2, first.AppCount)
	assert.Equal(t, 1, first.DepotCount)
	assert.Equal(t, int64(len(mainScript)), first.Size)

	second := res.Games[1]
	assert.Equal(t, "98765", second.AppID)
	assert.Equal(t, "Hollow Depths", second.Name)
	assert.False(t, second.NameFromCache)

	assert.Equal(t, first.Size+second.Size, res.TotalSize)
	assert.Equal(t, "0.00s", res.ProcessingTime)
	assert.Equal(t, 2, f.names.calls)
}

func TestDetectWithoutNames(t *testing.T) {
	f := newFixture(t)

	res, err := f.mgr.Detect(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, res.Games, 2)
	assert.Equal(t, "AppID 1234567", res.Games[0].Name)
	assert.Empty(t, res.Games[0].RealName)
	assert.Zero(t, f.names.calls)
}

func TestDetectMissingPluginDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	layout := func(context.Context) (steam.Layout, error) { return steam.NewLayout(root), nil }
	mgr := NewManager(fs, layout, nil, nil, cache.NewMemoryStore(), Config{}, logger.Nop())

	res, err := mgr.Detect(context.Background(), true)
	require.NoError(t, err)
	assert.Zero(t, res.TotalGames)
	assert.Equal(t, "Nenhum jogo .lua detectado", res.Message)
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)

	empty := f.mgr.Statistics()
	assert.Zero(t, empty.TotalGames)
	assert.Equal(t, "0 B", empty.TotalSizeFormatted)

	_, err := f.mgr.Detect(context.Background(), true)
	require.NoError(t, err)

	stats := f.mgr.Statistics()
	assert.Equal(t, 2, stats.TotalGames)
	assert.Equal(t, 1, stats.FromCacheCount)
	assert.Equal(t, 1, stats.FromAPICount)
	assert.Equal(t, 50, stats.CachedPercent)
	assert.Positive(t, stats.AverageSizeKB)
	assert.Equal(t, map[string]int{"small": 1, "medium": 1, "large": 0}, stats.SizeBreakdown)
}

func TestBackupLayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Backup(ctx, nil, "")
	require.ErrorIs(t, err, ErrNoGamesSelected)

	res, err := f.mgr.Detect(ctx, true)
	require.NoError(t, err)

	missing := Game{AppID: "4444444", FilePath: "/steam/config/stplug-in/4444444.lua"}
	backup, err := f.mgr.Backup(ctx, append(res.Games, missing), "")
	require.NoError(t, err)

	dir := filepath.Join("/backups", "20250314_092653")
	assert.Equal(t, dir, backup.BackupPath)
	assert.Equal(t, 2, backup.SuccessCount)
	assert.Equal(t, 3, backup.TotalCount)
	assert.Equal(t, 1, backup.FailedCount)
	assert.Equal(t, "4444444", backup.FailedGames[0].AppID)
	assert.NotEmpty(t, backup.ID)

	data, err := afero.ReadFile(f.fs, filepath.Join(dir, "1234567", "1234567.lua"))
	require.NoError(t, err)
	assert.Equal(t, mainScript, string(data))

	raw, err := afero.ReadFile(f.fs, filepath.Join(dir, "1234567", "metadata.json"))
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "Portal Deluxe", meta["name"])
	assert.Equal(t, "2.0", meta["backup_version"])

	raw, err = afero.ReadFile(f.fs, backup.ReportFile)
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, backup.ID, report["id"])
	assert.EqualValues(t, 3, report["total_games"])
	assert.EqualValues(t, 2, report["success_count"])
}

func TestRemoveKeepsSafetyCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.mgr.Detect(ctx, false)
	require.NoError(t, err)
	target := res.Games[0]

	gone := Game{AppID: "7777777", FilePath: "/steam/config/stplug-in/7777777.lua"}
	out, err := f.mgr.Remove(ctx, []Game{target, gone})
	require.NoError(t, err)
	assert.Equal(t, 2, out.RemovedCount)
	assert.Zero(t, out.FailedCount)

	exists, _ := afero.Exists(f.fs, target.FilePath)
	assert.False(t, exists)

	safety := filepath.Join("/removed", "20250314_092653", "1234567_1234567.lua.backup")
	data, err := afero.ReadFile(f.fs, safety)
	require.NoError(t, err)
	assert.Equal(t, mainScript, string(data))

	_, ok := f.mgr.Get("1234567")
	assert.False(t, ok)
	_, ok = f.mgr.Get("98765")
	assert.True(t, ok)
}

func TestRefreshAndValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Refresh(ctx, "98765")
	require.ErrorIs(t, err, ErrGameNotDetected)

	_, err = f.mgr.Detect(ctx, false)
	require.NoError(t, err)

	g, err := f.mgr.Refresh(ctx, "98765")
	require.NoError(t, err)
	assert.Equal(t, "Hollow Depths", g.Name)

	v := f.mgr.Validate("98765")
	assert.True(t, v.Valid)
	assert.True(t, v.SizeMatches)

	require.NoError(t, afero.WriteFile(f.fs, g.FilePath, []byte("short"), 0o644))
	v = f.mgr.Validate("98765")
	assert.True(t, v.Valid)
	assert.False(t, v.SizeMatches)

	require.NoError(t, f.fs.Remove(g.FilePath))
	v = f.mgr.Validate("98765")
	assert.False(t, v.Valid)
	assert.Equal(t, "Arquivo não existe", v.Error)

	assert.Equal(t, "Jogo não encontrado", f.mgr.Validate("1").Error)
}

func TestValidatePath(t *testing.T) {
	f := newFixture(t)

	v := f.mgr.ValidatePath(" \"/steam\" ")
	assert.True(t, v.Valid)
	assert.True(t, v.HasPluginDir)
	assert.True(t, v.Readable)
	assert.Equal(t, 5, v.LuaFilesCount)

	v = f.mgr.ValidatePath("/nowhere")
	assert.False(t, v.Valid)
	assert.Equal(t, "Caminho não existe", v.Error)
}

func TestInstalledFlagsAndCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acf := func(appid, name, dir string) string {
		return "\"AppState\"\n{\n\t\"appid\"\t\t\"" + appid + "\"\n\t\"name\"\t\t\"" + name + "\"\n\t\"installdir\"\t\t\"" + dir + "\"\n}\n"
	}
	apps := filepath.Join(root, "steamapps")
	require.NoError(t, afero.WriteFile(f.fs, filepath.Join(apps, "appmanifest_1234567.acf"), []byte(acf("1234567", "Portal Deluxe", "Portal")), 0o644))
	require.NoError(t, afero.WriteFile(f.fs, filepath.Join(apps, "appmanifest_220.acf"), []byte(acf("220", "Another Game", "Another")), 0o644))

	portal := filepath.Join(apps, "common", "Portal")
	require.NoError(t, afero.WriteFile(f.fs, filepath.Join(portal, "game.bin"), make([]byte, 3000), 0o644))
	require.NoError(t, afero.WriteFile(f.fs, filepath.Join(portal, "content", "extra.pak"), make([]byte, 1000), 0o644))
	require.NoError(t, afero.WriteFile(f.fs, filepath.Join(portal, "luatools-fix-log-1234567.log"), []byte("log"), 0o644))

	another := filepath.Join(apps, "common", "Another")
	require.NoError(t, afero.WriteFile(f.fs, filepath.Join(another, "main.exe"), make([]byte, 500), 0o644))

	list, cached, err := f.mgr.Installed(ctx, false)
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, list, 2)

	assert.Equal(t, "Another Game", list[0].Name)
	assert.Equal(t, int64(500), list[0].Size)
	assert.False(t, list[0].HasDLC)
	assert.False(t, list[0].HasFix)
	assert.False(t, list[0].LuaPlugin)
	assert.Equal(t, "none", list[0].FixStatus)

	portalGame := list[1]
	assert.Equal(t, "1234567", portalGame.AppID)
	assert.Equal(t, int64(4003), portalGame.Size)
	assert.True(t, portalGame.HasDLC)
	assert.True(t, portalGame.HasFix)
	assert.Equal(t, "applied", portalGame.FixStatus)
	assert.True(t, portalGame.LuaPlugin)

	_, cached, err = f.mgr.Installed(ctx, false)
	require.NoError(t, err)
	assert.True(t, cached)

	require.NoError(t, f.mgr.ClearInstalled(ctx))
	_, cached, err = f.mgr.Installed(ctx, false)
	require.NoError(t, err)
	assert.False(t, cached)
}
