package steam

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func mkSteamRoot(t *testing.T, fs afero.Fs, root string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Join(root, "steamapps"), 0o755))
	require.NoError(t, fs.MkdirAll(filepath.Join(root, "config"), 0o755))
}

func TestLocatorDetect(t *testing.T) {
	fs := afero.NewMemMapFs()
	mkSteamRoot(t, fs, "/home/u/.local/share/Steam")
	require.NoError(t, fs.MkdirAll("/home/u/.steam/steam", 0o755)) // no markers

	loc := NewLocator(fs, "", time.Minute, nil)
	loc.SetCandidates(func() []string {
		return []string{"/home/u/.steam/steam", "/home/u/.local/share/Steam"}
	})

	path, err := loc.Detect(context.Background())
	require.NoError(t, err)
	require.Equal(t, filepath.Clean("/home/u/.local/share/Steam"), path)

	cached, _, ok := loc.Cached()
	require.True(t, ok)
	require.Equal(t, path, cached)
}

func TestLocatorOverrideAndNotFound(t *testing.T) {
	fs := afero.NewMemMapFs()
	mkSteamRoot(t, fs, "/opt/custom")

	loc := NewLocator(fs, `"/opt/custom"`, time.Minute, nil)
	loc.SetCandidates(func() []string { return nil })
	path, err := loc.Detect(context.Background())
	require.NoError(t, err)
	require.Equal(t, filepath.Clean("/opt/custom"), path)

	loc.SetOverride("/does/not/exist")
	_, err = loc.Detect(context.Background())
	require.ErrorIs(t, err, ErrSteamNotFound)
}

func TestLocatorCacheExpires(t *testing.T) {
	fs := afero.NewMemMapFs()
	mkSteamRoot(t, fs, "/steam")

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loc := NewLocator(fs, "", time.Minute, nil)
	loc.now = func() time.Time { return now }

	var mu sync.Mutex
	scans := 0
	loc.SetCandidates(func() []string {
		mu.Lock()
		scans++
		mu.Unlock()
		return []string{"/steam"}
	})

	_, err := loc.Detect(context.Background())
	require.NoError(t, err)
	_, err = loc.Detect(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, scans)

	now = now.Add(time.Minute)
	_, err = loc.Detect(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, scans)

	loc.Clear()
	_, err = loc.Detect(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, scans)
}

func TestValidateManual(t *testing.T) {
	fs := afero.NewMemMapFs()
	mkSteamRoot(t, fs, "/games/Steam")
	require.NoError(t, afero.WriteFile(fs, "/games/Steam/steam.exe", []byte("MZ"), 0o644))

	loc := NewLocator(fs, "", time.Minute, nil)

	res := loc.ValidateManual(` "/games/Steam/steam.exe" `)
	require.Equal(t, filepath.Clean("/games/Steam"), res.Path)
	require.True(t, res.Exists)
	require.True(t, res.Valid)
	require.True(t, res.Writable)
	require.True(t, res.HasSteamApps)
	require.True(t, res.HasExecutable)

	res = loc.ValidateManual("/nowhere")
	require.False(t, res.Exists)
	require.False(t, res.Valid)
}

func TestValidateRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.ErrorIs(t, ValidateRoot(fs, ""), ErrSteamNotFound)

	require.NoError(t, fs.MkdirAll("/s/steamapps", 0o755))
	require.ErrorContains(t, ValidateRoot(fs, "/s"), "missing config")

	mkSteamRoot(t, fs, "/s")
	require.NoError(t, ValidateRoot(fs, "/s"))
	exists, _ := afero.Exists(fs, "/s/write_test.tmp")
	require.False(t, exists)
}

func TestInstalledApps(t *testing.T) {
	fs := afero.NewMemMapFs()
	root := "/steam"
	mkSteamRoot(t, fs, root)
	layout := NewLayout(root)

	require.NoError(t, afero.WriteFile(fs, layout.LibraryFolders(), []byte(`"libraryfolders"
{
	"0" { "path" "/steam" }
	"1" { "path" "/mnt/games" }
}`), 0o644))

	require.NoError(t, afero.WriteFile(fs, "/steam/steamapps/appmanifest_570.acf", []byte(`"AppState"
{
	"appid"		"570"
	"name"		"Dota 2"
	"installdir"		"dota 2 beta"
	"SizeOnDisk"		"123456"
}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/mnt/games/steamapps/appmanifest_620.acf", []byte(`"AppState"
{
	"appid"		"620"
	"name"		"Portal 2"
	"installdir"		"Portal 2"
}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/mnt/games/steamapps/appmanifest_1.acf", []byte(`broken {`), 0o644))

	require.Equal(t, []string{"/steam", filepath.Clean("/mnt/games")}, Libraries(fs, layout))

	apps, err := InstalledApps(fs, layout)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	require.Equal(t, "Dota 2", apps[0].Name)
	require.Equal(t, int64(123456), apps[0].SizeOnDisk)
	require.Equal(t, filepath.Join("/steam", "steamapps", "common", "dota 2 beta"), apps[0].InstallPath)
	require.Equal(t, "620", apps[1].AppID)
	require.Equal(t, filepath.Clean("/mnt/games"), apps[1].Library)
}

func TestCurrentUser(t *testing.T) {
	fs := afero.NewMemMapFs()
	layout := NewLayout("/steam")

	write := func(body string) {
		require.NoError(t, afero.WriteFile(fs, layout.LoginUsers(), []byte(body), 0o644))
	}

	write(`"users"
{
	"7656119800000001" { "AccountName" "first" "PersonaName" "First" "MostRecent" "0" }
	"7656119800000002" { "AccountName" "second" "PersonaName" "Second" "MostRecent" "1" }
	"7656119800000003" { "AccountName" "third" "PersonaName" "Third" "MostRecent" "0" }
}`)
	u, err := CurrentUser(fs, layout)
	require.NoError(t, err)
	require.Equal(t, "Second", u.PersonaName)

	write(`"users"
{
	"1" { "PersonaName" "Alpha" }
	"2" { "PersonaName" "Beta" }
	"3" { "AccountName" "nopersona" }
}`)
	u, err = CurrentUser(fs, layout)
	require.NoError(t, err)
	require.Equal(t, "Beta", u.PersonaName)

	write(`"users" { }`)
	_, err = CurrentUser(fs, layout)
	require.ErrorIs(t, err, ErrNoUser)
}

type fakeRunner struct {
	mu       sync.Mutex
	running  bool
	calls    []string
	startErr error
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	switch name {
	case "pgrep":
		if f.running {
			return []byte("1234\n"), nil
		}
		return nil, errors.New("exit status 1")
	case "pkill":
		f.running = false
	}
	return nil, nil
}

func (f *fakeRunner) Start(name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "start "+name)
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func TestControllerLifecycle(t *testing.T) {
	runner := &fakeRunner{running: true}
	c := newController(runner, "linux", time.Second, nil)
	c.pollInterval = time.Millisecond
	ctx := context.Background()

	require.True(t, c.IsRunning(ctx))
	require.NoError(t, c.Stop(ctx))
	require.False(t, c.IsRunning(ctx))
	require.Contains(t, runner.calls, "pkill -9 -x steam")

	require.NoError(t, c.Launch(ctx, "/steam"))
	require.True(t, c.IsRunning(ctx))
	require.Contains(t, runner.calls, "start steam")

	require.NoError(t, c.Restart(ctx, "/steam"))
	require.True(t, c.IsRunning(ctx))
}

type stuckRunner struct{}

func (stuckRunner) Output(context.Context, string, ...string) ([]byte, error) {
	return []byte("1234"), nil
}
func (stuckRunner) Start(string, ...string) error { return nil }

func TestControllerStopTimeout(t *testing.T) {
	c := newController(stuckRunner{}, "linux", 20*time.Millisecond, nil)
	c.pollInterval = 5 * time.Millisecond
	require.ErrorContains(t, c.Stop(context.Background()), "still running")
}

func TestWindowsCommandsMatchTasklist(t *testing.T) {
	cmds := commandsFor("windows")
	require.Equal(t, "steam.exe", cmds.match)
	require.Equal(t, filepath.Join(`C:\Steam`, "steam.exe"), cmds.launch(`C:\Steam`).name)
}
