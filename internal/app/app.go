// Package app builds the component graph of the loader from a configuration.
// One App is created at startup and handed to the HTTP server and the tray.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/Guliveer/steam-gameloader-go/internal/cache"
	"github.com/Guliveer/steam-gameloader-go/internal/config"
	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/dlc"
	"github.com/Guliveer/steam-gameloader-go/internal/dll"
	"github.com/Guliveer/steam-gameloader-go/internal/download"
	"github.com/Guliveer/steam-gameloader-go/internal/events"
	"github.com/Guliveer/steam-gameloader-go/internal/fix"
	"github.com/Guliveer/steam-gameloader-go/internal/games"
	"github.com/Guliveer/steam-gameloader-go/internal/history"
	"github.com/Guliveer/steam-gameloader-go/internal/httpclient"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/luaplugin"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
	"github.com/Guliveer/steam-gameloader-go/internal/notify"
	"github.com/Guliveer/steam-gameloader-go/internal/placement"
	"github.com/Guliveer/steam-gameloader-go/internal/steam"
	"github.com/Guliveer/steam-gameloader-go/internal/store"
)

// App owns every long-lived component.
type App struct {
	Config *config.Config
	Log    *logger.Logger
	FS     afero.Fs

	Locator    *steam.Locator
	Controller *steam.Controller

	Cache cache.Store
	HTTP  *httpclient.Client
	Store *store.Client

	Plugin     *luaplugin.Store
	Placer     *placement.Placer
	History    *history.Store
	Downloader *download.Downloader
	DLC        *dlc.Manager
	Fixes      *fix.Service
	Games      *games.Manager
	DLL        *dll.Manager

	Events   *events.Hub
	Notifier *notify.Dispatcher

	redis *cache.RedisStore
}

// Option customizes New. Tests use it to swap the filesystem and runners.
type Option func(*options)

type options struct {
	fs     afero.Fs
	runner steam.Runner
	git    download.GitRunner
	cache  cache.Store
}

// WithFS replaces the OS filesystem.
func WithFS(fs afero.Fs) Option { return func(o *options) { o.fs = fs } }

// WithRunner replaces the process runner used by the Steam controller.
func WithRunner(r steam.Runner) Option { return func(o *options) { o.runner = r } }

// WithGit replaces the git executable used by the download cascade.
func WithGit(g download.GitRunner) Option { return func(o *options) { o.git = g } }

// WithCache replaces the configured cache backend.
func WithCache(s cache.Store) Option { return func(o *options) { o.cache = s } }

// New wires the components described by cfg.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.Nop()
	}
	o := options{fs: afero.NewOsFs(), runner: steam.ExecRunner{}, git: download.ExecGit{}}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Config: cfg,
		Log:    log,
		FS:     o.fs,
		Events: events.NewHub(),
	}

	a.Notifier = notify.NewDispatcher(cfg.Notifications, log.WithComponent("notify"))
	if a.Notifier.HasNotifiers() {
		log.SetNotifyFunc(a.Notifier.NotifyFunc())
	}

	a.Cache = o.cache
	if a.Cache == nil {
		cs, err := a.openCache(ctx)
		if err != nil {
			return nil, err
		}
		a.Cache = cs
	}

	a.Locator = steam.NewLocator(a.FS, cfg.Steam.Path, cfg.Steam.PathCacheTTL, log.WithComponent("steam"))
	a.Controller = steam.NewController(o.runner, cfg.Steam.ShutdownTimeout, log.WithComponent("steam"))

	a.HTTP = httpclient.New(log.WithComponent("http"),
		httpclient.WithUserAgent(constants.UserAgent),
		httpclient.WithTimeout(constants.DownloadTimeout),
	)
	storeHTTP := httpclient.New(log.WithComponent("store"),
		httpclient.WithUserAgent(constants.StoreUserAgent),
		httpclient.WithTimeout(constants.APITimeout),
		httpclient.WithRateLimit(constants.StoreRateLimit),
	)
	a.Store = store.New(storeHTTP, a.Cache, store.Config{
		NamesTTL:  cfg.Cache.NamesTTL,
		SearchTTL: cfg.Cache.SearchTTL,
	}, log.WithComponent("store"))

	a.Plugin = luaplugin.NewStore(a.FS, func(ctx context.Context) (string, error) {
		layout, err := a.Layout(ctx)
		if err != nil {
			return "", err
		}
		return layout.SteamtoolsLua(), nil
	})

	a.Placer = placement.NewPlacer(a.FS, a.Layout, placement.Settings{
		MakeBackup:        cfg.Placement.MakeBackupEnabled(),
		ExtractArchives:   cfg.Placement.ExtractArchivesEnabled(),
		OverwriteExisting: cfg.Placement.OverwriteEnabled(),
		StrictAppID:       cfg.Placement.StrictAppID,
	}, log.WithComponent("placement"))

	hist, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		_ = a.closeCache()
		return nil, fmt.Errorf("opening download history: %w", err)
	}
	a.History = hist

	a.Downloader = download.New(download.Deps{
		FS:           a.FS,
		HTTP:         a.HTTP,
		Git:          o.git,
		GitEnabled:   cfg.GitEnabled(),
		Mirrors:      cfg.Download.MirrorList(),
		Repositories: cfg.Download.Repositories,
		LuaURLs:      constants.IndividualLuaURLs,
		ManifestURLs: constants.IndividualManifestURLs,
		Cache:        a.Cache,
		DownloadTTL:  cfg.Cache.DownloadTTL,
		APICheckTTL:  cfg.Cache.APICheckTTL,
		Budget:       cfg.Download.Budget,
		Placer:       a.Placer,
		History:      a.History,
		Events:       a.Events,
		Log:          log.WithComponent("download"),
	})

	hasFix := func(installPath, appid string) bool {
		return fix.Installed(a.FS, installPath, appid)
	}

	a.DLC = dlc.NewManager(a.Store, a.Plugin, a.InstalledApps, hasFix, a.Cache, dlc.Config{
		DLCTTL:   constants.DLCCacheTTL,
		GamesTTL: constants.DLCGamesCacheTTL,
	}, log.WithComponent("dlc"))

	catalog, err := fix.LoadCatalog(a.FS, cfg.Paths.FixesCatalog)
	if err != nil {
		log.Warn("Fix catalog unreadable, local fixes disabled", "path", cfg.Paths.FixesCatalog, "error", err)
	}
	checker := fix.NewChecker(a.HTTP, a.Store, catalog, log.WithComponent("fix"))
	jobs := fix.NewJobs(a.FS, a.HTTP, a.Events, log.WithComponent("fix"))
	a.Fixes = fix.NewService(a.FS, checker, jobs, a.InstalledApps, log.WithComponent("fix"))

	a.Games = games.NewManager(a.FS, a.Layout, a.Store, hasFix, a.Cache, games.Config{
		BackupDir:        cfg.Paths.BackupDir,
		RemovalBackupDir: cfg.Paths.RemovalBackupDir,
		InstalledTTL:     constants.InstalledCacheTTL,
	}, log.WithComponent("games"))

	a.DLL = dll.NewManager(a.FS, a.Locator, a.Events, dll.Config{
		Base64Path: cfg.Paths.DLLBase64,
		StatusTTL:  constants.DLLStatusTTL,
	}, log.WithComponent("dll"))

	return a, nil
}

func (a *App) openCache(ctx context.Context) (cache.Store, error) {
	switch a.Config.Cache.Backend {
	case config.CacheBackendMemory:
		return cache.NewMemoryStore(), nil
	case config.CacheBackendRedis:
		rs, err := cache.NewRedisStore(ctx, a.Config.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = rs
		return rs, nil
	default:
		if err := a.FS.MkdirAll(a.Config.Paths.CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		return cache.NewFileStore(a.FS, a.Config.Paths.CacheDir), nil
	}
}

func (a *App) closeCache() error {
	if a.redis == nil {
		return nil
	}
	err := a.redis.Close()
	a.redis = nil
	return err
}

// Layout resolves the current Steam layout.
func (a *App) Layout(ctx context.Context) (steam.Layout, error) {
	root, err := a.Locator.Detect(ctx)
	if err != nil {
		return steam.Layout{}, err
	}
	return steam.NewLayout(root), nil
}

// InstalledApps lists the apps of every Steam library.
func (a *App) InstalledApps(ctx context.Context) ([]steam.InstalledApp, error) {
	layout, err := a.Layout(ctx)
	if err != nil {
		return nil, err
	}
	return steam.InstalledApps(a.FS, layout)
}

// SetSteamPath stores a manually chosen Steam root and drops every memo
// that depends on the old one.
func (a *App) SetSteamPath(ctx context.Context, path string) {
	a.Locator.SetOverride(path)
	a.DLL.Reset(ctx)
	if err := a.Games.ClearInstalled(ctx); err != nil {
		a.Log.Warn("Failed to clear installed games cache", "error", err)
	}
}

// Steam control actions.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRestart = "restart"
)

// ErrUnknownAction is returned by ControlSteam for anything but start, stop or restart.
var ErrUnknownAction = errors.New("unknown steam action")

// ControlSteam starts, stops or restarts the Steam client and reports the
// new state to subscribers and notifiers.
func (a *App) ControlSteam(ctx context.Context, action string) error {
	var err error
	switch action {
	case ActionStart, ActionRestart:
		var layout steam.Layout
		if layout, err = a.Layout(ctx); err != nil {
			return err
		}
		if action == ActionStart {
			err = a.Controller.Launch(ctx, layout.Root)
		} else {
			err = a.Controller.Restart(ctx, layout.Root)
		}
	case ActionStop:
		err = a.Controller.Stop(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if err != nil {
		return err
	}

	running := action != ActionStop
	a.Events.Publish(events.SteamState, "", map[string]any{"action": action, "running": running})
	if running {
		a.Log.Event(ctx, model.EventSteamStarted, "Steam started", "action", action)
	} else {
		a.Log.Event(ctx, model.EventSteamStopped, "Steam stopped")
	}
	return nil
}

// Close waits for background work and releases the history database
// and the redis connection.
func (a *App) Close() error {
	a.Fixes.Jobs().Wait()
	a.Notifier.Wait()
	return errors.Join(a.History.Close(), a.closeCache())
}
