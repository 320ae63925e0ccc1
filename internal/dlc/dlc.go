// Package dlc lists the DLCs of a game through the Steam Store API and
// unlocks them by editing the addappid lines of Steamtools.lua.
package dlc

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Guliveer/steam-gameloader-go/internal/cache"
	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/luaplugin"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
	"github.com/Guliveer/steam-gameloader-go/internal/steam"
	"github.com/Guliveer/steam-gameloader-go/internal/store"
	"github.com/Guliveer/steam-gameloader-go/internal/workerpool"
)

// Cache namespaces.
const (
	DLCNamespace   = "dlc_cache"
	GamesNamespace = "dlc_games_cache"
	gamesKey       = "games"
)

var (
	ErrNoDLCSelected = errors.New("no DLC selected")
	ErrGameNotFound  = errors.New("game is not installed")
)

// invalidName matches store entries that are not playable content.
var invalidName = regexp.MustCompile(`(?i)soundtrack|\bost\b|artbook|art book|guide|season pass|bundle|pack|comic`)

// IsValidName reports whether a DLC name describes unlockable game content.
func IsValidName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && !invalidName.MatchString(name)
}

// Catalog is the part of the Store API the manager needs.
type Catalog interface {
	AppDetails(ctx context.Context, appid, lang string) (*store.AppData, error)
	Ping(ctx context.Context) bool
}

// AppsFunc lists the apps installed in the Steam libraries.
type AppsFunc func(ctx context.Context) ([]steam.InstalledApp, error)

// FixFunc reports whether a fix for appid is applied in an install directory.
type FixFunc func(installPath, appid string) bool

// DLC is one store DLC of a game.
type DLC struct {
	ID              string `json:"id"`
	AppID           string `json:"appid"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Type            string `json:"type"`
	Price           string `json:"price"`
	OriginalPrice   string `json:"original_price"`
	DiscountPercent int    `json:"discount_percent"`
	IsFree          bool   `json:"is_free"`
	ReleaseDate     string `json:"release_date"`
	ComingSoon      bool   `json:"coming_soon"`
	HeaderImage     string `json:"header_image"`
	CapsuleImage    string `json:"capsule_image"`
	Installed       bool   `json:"installed"`
}

// Game is an installed game as seen by the DLC page.
type Game struct {
	AppID             string `json:"appid"`
	Name              string `json:"name"`
	InstallPath       string `json:"install_path"`
	HasFix            bool   `json:"has_fix"`
	HasDLC            bool   `json:"has_dlc"`
	InstalledDLCCount int    `json:"installed_dlc_count"`
}

// Config holds the cache lifetimes of a Manager.
type Config struct {
	DLCTTL   time.Duration
	GamesTTL time.Duration
}

// Manager is the DLC facade.
type Manager struct {
	catalog Catalog
	plugin  *luaplugin.Store
	apps    AppsFunc
	hasFix  FixFunc
	dlcs    *cache.TTL[[]DLC]
	games   *cache.TTL[[]Game]
	log     *logger.Logger

	mu     sync.Mutex
	cached map[string]int
}

// NewManager creates a Manager. hasFix may be nil.
func NewManager(catalog Catalog, plugin *luaplugin.Store, apps AppsFunc, hasFix FixFunc, cacheStore cache.Store, cfg Config, log *logger.Logger) *Manager {
	if cfg.DLCTTL <= 0 {
		cfg.DLCTTL = constants.DLCCacheTTL
	}
	if cfg.GamesTTL <= 0 {
		cfg.GamesTTL = constants.DLCGamesCacheTTL
	}
	if hasFix == nil {
		hasFix = func(string, string) bool { return false }
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		catalog: catalog,
		plugin:  plugin,
		apps:    apps,
		hasFix:  hasFix,
		dlcs:    cache.NewTTL[[]DLC](cacheStore, DLCNamespace, cfg.DLCTTL),
		games:   cache.NewTTL[[]Game](cacheStore, GamesNamespace, cfg.GamesTTL),
		log:     log,
		cached:  make(map[string]int),
	}
}

// List returns the valid DLCs of appid with their installed flag.
func (m *Manager) List(ctx context.Context, appid string) ([]DLC, error) {
	return m.list(ctx, appid, false)
}

func (m *Manager) list(ctx context.Context, appid string, force bool) ([]DLC, error) {
	if !model.IsAppID(appid) {
		return nil, fmt.Errorf("invalid appid %q", appid)
	}

	var (
		dlcs []DLC
		ok   bool
	)
	if !force {
		dlcs, ok = m.dlcs.Get(ctx, appid)
	}
	if !ok {
		var err error
		dlcs, err = m.fetch(ctx, appid)
		if err != nil {
			return nil, err
		}
		if err := m.dlcs.Set(ctx, appid, dlcs); err != nil {
			m.log.Warn("Failed to cache DLC list", "appid", appid, "error", err)
		}
		m.mu.Lock()
		m.cached[appid] = len(dlcs)
		m.mu.Unlock()
	}

	installed, err := m.installedSet(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DLC, len(dlcs))
	for i, d := range dlcs {
		d.Installed = installed[d.ID]
		out[i] = d
	}
	return out, nil
}

func (m *Manager) fetch(ctx context.Context, appid string) ([]DLC, error) {
	data, err := m.catalog.AppDetails(ctx, appid, "")
	if err != nil {
		return nil, fmt.Errorf("fetching DLC ids of %s: %w", appid, err)
	}
	ids := data.DLCIDs()
	if len(ids) == 0 {
		m.log.Info("Game has no DLCs", "appid", appid)
		return []DLC{}, nil
	}

	results := workerpool.Map(ctx, ids, constants.DLCWorkers, func(ctx context.Context, id string) (DLC, error) {
		d, err := m.catalog.AppDetails(ctx, id, "")
		if err != nil {
			return DLC{}, err
		}
		return projectDLC(id, d), nil
	})

	dlcs := make([]DLC, 0, len(ids))
	skipped := 0
	for i, r := range results {
		if !r.OK() {
			m.log.Debug("DLC lookup failed", "appid", ids[i], "error", r.Err)
			skipped++
			continue
		}
		if !IsValidName(r.Value.Name) {
			skipped++
			continue
		}
		dlcs = append(dlcs, r.Value)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.log.Info("DLC list fetched", "appid", appid, "dlcs", len(dlcs), "skipped", skipped)
	return dlcs, nil
}

func projectDLC(id string, data *store.AppData) DLC {
	d := DLC{
		ID:            id,
		AppID:         id,
		Name:          strings.TrimSpace(data.Name),
		Description:   data.ShortDescription,
		Type:          data.Type,
		Price:         "N/A",
		OriginalPrice: "N/A",
		IsFree:        data.IsFree,
		ReleaseDate:   data.ReleaseDate.Date,
		ComingSoon:    data.ReleaseDate.ComingSoon,
		HeaderImage:   data.HeaderImage,
		CapsuleImage:  data.CapsuleImage,
	}
	if d.Name == "" {
		d.Name = "DLC " + id
	}
	if d.Type == "" {
		d.Type = "dlc"
	}
	if p := data.PriceOverview; p != nil {
		if p.FinalFormatted != "" {
			d.Price = p.FinalFormatted
		}
		if p.InitialFormatted != "" {
			d.OriginalPrice = p.InitialFormatted
		}
		d.DiscountPercent = p.DiscountPercent
	}
	return d
}

func (m *Manager) installedSet(ctx context.Context) (map[string]bool, error) {
	ids, err := m.plugin.Installed(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// Installed returns the DLC ids unlocked in Steamtools.lua.
func (m *Manager) Installed(ctx context.Context) ([]string, error) {
	return m.plugin.Installed(ctx)
}

// InstallResult is the outcome of Install.
type InstallResult struct {
	Installed int      `json:"installed"`
	Added     []string `json:"dlcs_added"`
	Message   string   `json:"message"`
}

// Install unlocks ids for appid. Ids already present are left alone.
func (m *Manager) Install(ctx context.Context, appid string, ids []string) (*InstallResult, error) {
	if len(ids) == 0 {
		return nil, ErrNoDLCSelected
	}
	added, err := m.plugin.Add(ctx, ids)
	if err != nil {
		return nil, err
	}
	m.invalidate(ctx, appid)

	if len(added) == 0 {
		return &InstallResult{Added: []string{}, Message: "All DLCs are already installed."}, nil
	}
	m.log.Event(ctx, model.EventDLCInstalled, "DLCs installed", "appid", appid, "count", len(added))
	return &InstallResult{
		Installed: len(added),
		Added:     added,
		Message:   fmt.Sprintf("%d DLC(s) installed.", len(added)),
	}, nil
}

// UninstallResult is the outcome of Uninstall.
type UninstallResult struct {
	Removed int    `json:"removed"`
	Message string `json:"message"`
}

// Uninstall removes ids from Steamtools.lua. With no ids it removes every
// DLC of appid and leaves the unlocks of other games alone.
func (m *Manager) Uninstall(ctx context.Context, appid string, ids []string) (*UninstallResult, error) {
	if len(ids) == 0 {
		data, err := m.catalog.AppDetails(ctx, appid, "")
		if err != nil {
			return nil, fmt.Errorf("fetching DLC ids of %s: %w", appid, err)
		}
		ids = data.DLCIDs()
		if len(ids) == 0 {
			return &UninstallResult{Message: "0 DLC(s) removed."}, nil
		}
	}

	removed, err := m.plugin.Remove(ctx, ids)
	if err != nil {
		return nil, err
	}
	m.invalidate(ctx, appid)

	if removed > 0 {
		m.log.Event(ctx, model.EventDLCRemoved, "DLCs removed", "appid", appid, "count", removed)
	}
	return &UninstallResult{Removed: removed, Message: fmt.Sprintf("%d DLC(s) removed.", removed)}, nil
}

func (m *Manager) invalidate(ctx context.Context, appid string) {
	if err := errors.Join(m.dlcs.Delete(ctx, appid), m.games.Clear(ctx)); err != nil {
		m.log.Warn("Failed to invalidate DLC caches", "appid", appid, "error", err)
	}
	m.mu.Lock()
	delete(m.cached, appid)
	m.mu.Unlock()
}

// Search filters the DLCs of appid by name or description.
func (m *Manager) Search(ctx context.Context, appid, query string) ([]DLC, error) {
	dlcs, err := m.List(ctx, appid)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return dlcs, nil
	}
	out := make([]DLC, 0, len(dlcs))
	for _, d := range dlcs {
		if strings.Contains(strings.ToLower(d.Name), q) || strings.Contains(strings.ToLower(d.Description), q) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Games lists the installed games with their DLC and fix state.
func (m *Manager) Games(ctx context.Context, force bool) ([]Game, bool, error) {
	if !force {
		if games, ok := m.games.Get(ctx, gamesKey); ok {
			return games, true, nil
		}
	}

	apps, err := m.apps(ctx)
	if err != nil {
		return nil, false, err
	}
	installed, err := m.plugin.Installed(ctx)
	if err != nil {
		return nil, false, err
	}

	games := make([]Game, 0, len(apps))
	for _, app := range apps {
		count := m.installedFor(ctx, app.AppID, installed)
		games = append(games, Game{
			AppID:             app.AppID,
			Name:              app.Name,
			InstallPath:       app.InstallPath,
			HasFix:            app.InstallPath != "" && m.hasFix(app.InstallPath, app.AppID),
			HasDLC:            count > 0,
			InstalledDLCCount: count,
		})
	}
	if err := m.games.Set(ctx, gamesKey, games); err != nil {
		m.log.Warn("Failed to cache DLC games", "error", err)
	}
	return games, false, nil
}

// installedFor counts the unlocked DLCs of appid. Without a cached DLC list
// every unlock in Steamtools.lua is counted, as the file is shared by all games.
func (m *Manager) installedFor(ctx context.Context, appid string, installed []string) int {
	dlcs, ok := m.dlcs.Get(ctx, appid)
	if !ok {
		return len(installed)
	}
	own := make(map[string]struct{}, len(dlcs))
	for _, d := range dlcs {
		own[d.ID] = struct{}{}
	}
	n := 0
	for _, id := range installed {
		if _, ok := own[id]; ok {
			n++
		}
	}
	return n
}

// Game returns one installed game.
func (m *Manager) Game(ctx context.Context, appid string) (*Game, error) {
	games, _, err := m.Games(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range games {
		if games[i].AppID == appid {
			return &games[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrGameNotFound, appid)
}

// Summary is a game together with its DLCs.
type Summary struct {
	Game            *Game    `json:"game"`
	AvailableDLCs   int      `json:"available_dlcs"`
	InstalledDLCs   int      `json:"installed_dlcs"`
	DLCs            []DLC    `json:"dlcs"`
	InstalledDLCIDs []string `json:"installed_dlc_ids"`
}

// Summary returns the DLC overview of an installed game.
func (m *Manager) Summary(ctx context.Context, appid string) (*Summary, error) {
	game, err := m.Game(ctx, appid)
	if err != nil {
		return nil, err
	}
	dlcs, err := m.List(ctx, appid)
	if err != nil {
		return nil, err
	}

	s := &Summary{Game: game, AvailableDLCs: len(dlcs), DLCs: dlcs, InstalledDLCIDs: []string{}}
	for _, d := range dlcs {
		if d.Installed {
			s.InstalledDLCs++
			s.InstalledDLCIDs = append(s.InstalledDLCIDs, d.ID)
		}
	}
	return s, nil
}

// Validation is the result of a forced DLC refresh.
type Validation struct {
	AppID          string    `json:"appid"`
	TotalValid     int       `json:"total_valid"`
	InstalledCount int       `json:"installed_count"`
	DLCs           []DLC     `json:"dlcs"`
	CheckedAt      time.Time `json:"timestamp"`
}

// Validate refetches the DLC list of appid, bypassing the cache.
func (m *Manager) Validate(ctx context.Context, appid string) (*Validation, error) {
	dlcs, err := m.list(ctx, appid, true)
	if err != nil {
		return nil, err
	}
	v := &Validation{AppID: appid, TotalValid: len(dlcs), DLCs: dlcs, CheckedAt: time.Now()}
	for _, d := range dlcs {
		if d.Installed {
			v.InstalledCount++
		}
	}
	return v, nil
}

// Status summarizes the DLC subsystem.
type Status struct {
	PluginDir       string    `json:"stplug-in"`
	PluginFile      string    `json:"steamtools_lua"`
	TotalGames      int       `json:"total_games"`
	GamesWithDLC    int       `json:"games_with_dlc"`
	InstalledDLCs   int       `json:"installed_dlcs"`
	DLCCacheSize    int       `json:"dlc_cache_size"`
	TotalDLCsCached int       `json:"total_dlcs_cached"`
	FromCache       bool      `json:"from_cache"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Status reports the plugin location, game counts and cache usage.
func (m *Manager) Status(ctx context.Context) Status {
	st := Status{Timestamp: time.Now()}
	if path, err := m.plugin.Path(ctx); err == nil {
		st.PluginFile = path
		st.PluginDir = dirOf(path)
	} else {
		st.Error = err.Error()
	}

	if games, fromCache, err := m.Games(ctx, false); err == nil {
		st.TotalGames = len(games)
		st.FromCache = fromCache
		for _, g := range games {
			if g.HasDLC {
				st.GamesWithDLC++
			}
		}
	} else if st.Error == "" {
		st.Error = err.Error()
	}

	if ids, err := m.plugin.Installed(ctx); err == nil {
		st.InstalledDLCs = len(ids)
	}

	m.mu.Lock()
	st.DLCCacheSize = len(m.cached)
	for _, n := range m.cached {
		st.TotalDLCsCached += n
	}
	m.mu.Unlock()
	return st
}

func dirOf(path string) string {
	i := strings.LastIndexAny(path, `/\`)
	if i < 0 {
		return ""
	}
	return path[:i]
}

// ClearCache empties the DLC and games caches.
func (m *Manager) ClearCache(ctx context.Context) error {
	m.mu.Lock()
	clear(m.cached)
	m.mu.Unlock()
	if err := errors.Join(m.dlcs.Clear(ctx), m.games.Clear(ctx)); err != nil {
		return err
	}
	m.log.Info("DLC caches cleared")
	return nil
}

// Health reports whether the plugin file is reachable and the store answers.
type Health struct {
	Healthy        bool              `json:"healthy"`
	PluginReady    bool              `json:"plugin_ready"`
	StoreReachable bool              `json:"store_reachable"`
	Checks         map[string]string `json:"checks"`
}

// Health runs the DLC subsystem checks.
func (m *Manager) Health(ctx context.Context) Health {
	h := Health{Checks: map[string]string{}}

	if _, err := m.plugin.Installed(ctx); err != nil {
		h.Checks["plugin"] = err.Error()
	} else {
		h.PluginReady = true
		h.Checks["plugin"] = "ok"
	}

	h.StoreReachable = m.catalog.Ping(ctx)
	if h.StoreReachable {
		h.Checks["store"] = "ok"
	} else {
		h.Checks["store"] = "unreachable"
	}

	h.Healthy = h.PluginReady && h.StoreReachable
	return h
}
