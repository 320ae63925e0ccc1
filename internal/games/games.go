// Package games manages the per-game plugin scripts in config/stplug-in:
// detection, name lookup, backups and removal. It also builds the unified
// list of games installed in the Steam libraries.
package games

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Guliveer/steam-gameloader-go/internal/cache"
	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/jsonutil"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/luaplugin"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
	"github.com/Guliveer/steam-gameloader-go/internal/steam"
	"github.com/Guliveer/steam-gameloader-go/internal/utils"
	"github.com/Guliveer/steam-gameloader-go/internal/workerpool"
)

// InstalledNamespace is the cache namespace of the installed-games list.
const (
	InstalledNamespace = "installed_games_cache"
	installedKey       = "installed"
)

const (
	dateLayout      = "02/01/2006 15:04"
	stampLayout     = "20060102_150405"
	minAppIDDigits  = 5
	maxAppIDDigits  = 10
	backupVersion   = "2.0"
	backupReport    = "backup_report.json"
	backupMetadata  = "metadata.json"
	smallScriptSize = 1024
	largeScriptSize = 10240
)

var (
	ErrNoGamesSelected = errors.New("no games selected")
	ErrGameNotDetected = errors.New("game not detected")
)

// LayoutFunc resolves the current Steam layout.
type LayoutFunc func(ctx context.Context) (steam.Layout, error)

// NameResolver looks up app names; the bool reports a cache hit.
type NameResolver interface {
	AppName(ctx context.Context, appid string) (string, bool)
}

// FixFunc reports whether a fix for appid is applied in an install directory.
type FixFunc func(installPath, appid string) bool

// Game is one plugin script found in config/stplug-in.
type Game struct {
	AppID         string `json:"appid"`
	Name          string `json:"name"`
	RealName      string `json:"real_name,omitempty"`
	Type          string `json:"type"`
	FilePath      string `json:"file_path"`
	FileName      string `json:"file_name"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"size_formatted"`
	InstallDate   string `json:"install_date"`
	CreatedDate   string `json:"created_date"`
	IsValid       bool   `json:"is_valid"`
	NameFromCache bool   `json:"name_from_cache"`
	AppCount      int    `json:"app_count"`
	DepotCount    int    `json:"depot_count"`
}

// Detection is the result of Detect.
type Detection struct {
	Games          []Game `json:"games"`
	TotalGames     int    `json:"total_games"`
	TotalSize      int64  `json:"total_size"`
	ProcessingTime string `json:"processing_time"`
	Message        string `json:"message"`
}

// Failure names a game an operation could not handle.
type Failure struct {
	AppID string `json:"appid"`
	Error string `json:"error"`
}

// BackupResult is the result of Backup.
type BackupResult struct {
	ID           string    `json:"id"`
	Message      string    `json:"message"`
	BackupPath   string    `json:"backup_path"`
	SuccessCount int       `json:"success_count"`
	TotalCount   int       `json:"total_count"`
	FailedCount  int       `json:"failed_count"`
	FailedGames  []Failure `json:"failed_games"`
	ReportFile   string    `json:"report_file"`
}

type backupMeta struct {
	AppID         string `json:"appid"`
	Name          string `json:"name"`
	RealName      string `json:"real_name,omitempty"`
	BackupDate    string `json:"backup_date"`
	OriginalPath  string `json:"original_path"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"size_formatted"`
	InstallDate   string `json:"install_date"`
	BackupVersion string `json:"backup_version"`
}

type backupReportFile struct {
	ID           string    `json:"id"`
	BackupDate   string    `json:"backup_date"`
	TotalGames   int       `json:"total_games"`
	SuccessCount int       `json:"success_count"`
	FailedCount  int       `json:"failed_count"`
	FailedGames  []Failure `json:"failed_games"`
	BackupPath   string    `json:"backup_path"`
	TotalSize    int64     `json:"total_size"`
}

// RemoveResult is the result of Remove.
type RemoveResult struct {
	Message      string    `json:"message"`
	RemovedCount int       `json:"removed_count"`
	TotalCount   int       `json:"total_count"`
	FailedCount  int       `json:"failed_count"`
	FailedGames  []Failure `json:"failed_games"`
	BackupDir    string    `json:"backup_dir"`
}

// Statistics summarizes the last detection.
type Statistics struct {
	TotalGames         int            `json:"total_games"`
	TotalSizeBytes     int64          `json:"total_size_bytes"`
	TotalSizeFormatted string         `json:"total_size_formatted"`
	FromCacheCount     int            `json:"from_cache_count"`
	FromAPICount       int            `json:"from_api_count"`
	CachedPercent      int            `json:"cached_percent"`
	SizeBreakdown      map[string]int `json:"size_breakdown"`
	AverageSize        string         `json:"average_size"`
	AverageSizeKB      float64        `json:"average_size_kb"`
	Message            string         `json:"message"`
}

// FileValidation reports whether a detected script is still on disk.
type FileValidation struct {
	Valid        bool   `json:"valid"`
	AppID        string `json:"appid"`
	FilePath     string `json:"file_path,omitempty"`
	Size         int64  `json:"size,omitempty"`
	SizeMatches  bool   `json:"size_matches"`
	LastModified string `json:"last_modified,omitempty"`
	Error        string `json:"error,omitempty"`
}

// PathValidation reports whether a Steam root can hold plugin scripts.
type PathValidation struct {
	Valid         bool   `json:"valid"`
	SteamPath     string `json:"steam_path"`
	HasPluginDir  bool   `json:"has_stplugin_dir"`
	LuaFilesCount int    `json:"lua_files_count"`
	PluginPath    string `json:"stplugin_path"`
	Readable      bool   `json:"readable"`
	Error         string `json:"error,omitempty"`
}

// InstalledGame is one app of the Steam libraries with its local flags.
type InstalledGame struct {
	AppID         string `json:"appid"`
	Name          string `json:"name"`
	InstallDir    string `json:"installdir"`
	InstallPath   string `json:"install_path"`
	Library       string `json:"library"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"size_formatted"`
	HasFix        bool   `json:"has_fix"`
	FixStatus     string `json:"fix_status"`
	HasDLC        bool   `json:"has_dlc"`
	LuaPlugin     bool   `json:"lua_plugin"`
}

// Config configures a Manager.
type Config struct {
	BackupDir        string
	RemovalBackupDir string
	InstalledTTL     time.Duration
}

// Manager is the game-management facade.
type Manager struct {
	fs        afero.Fs
	layout    LayoutFunc
	names     NameResolver
	hasFix    FixFunc
	installed *cache.TTL[[]InstalledGame]
	cfg       Config
	log       *logger.Logger
	now       func() time.Time

	mu       sync.RWMutex
	detected []Game
}

// NewManager creates a Manager. hasFix may be nil.
func NewManager(afs afero.Fs, layout LayoutFunc, names NameResolver, hasFix FixFunc, cacheStore cache.Store, cfg Config, log *logger.Logger) *Manager {
	if cfg.InstalledTTL <= 0 {
		cfg.InstalledTTL = constants.InstalledCacheTTL
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(homeDir(), "SteamGameLoader_Backups")
	}
	if cfg.RemovalBackupDir == "" {
		cfg.RemovalBackupDir = filepath.Join(homeDir(), "SteamGameLoader_Removal_Backups")
	}
	if hasFix == nil {
		hasFix = func(string, string) bool { return false }
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		fs:        afs,
		layout:    layout,
		names:     names,
		hasFix:    hasFix,
		installed: cache.NewTTL[[]InstalledGame](cacheStore, InstalledNamespace, cfg.InstalledTTL),
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

func validStem(stem string) bool {
	return len(stem) >= minAppIDDigits && len(stem) <= maxAppIDDigits && model.IsAppID(stem)
}

func fallbackName(appid string) string {
	return "AppID " + appid
}

// Detect scans the plugin directory for <appid>.lua scripts and, when
// fetchNames is set, resolves their names through the Store API.
func (m *Manager) Detect(ctx context.Context, fetchNames bool) (*Detection, error) {
	start := m.now()

	layout, err := m.layout(ctx)
	if err != nil {
		return nil, err
	}

	found, err := m.scan(layout.PluginDir())
	if err != nil {
		return nil, err
	}

	if fetchNames && len(found) > 0 {
		m.resolveNames(ctx, found)
	}

	m.mu.Lock()
	m.detected = found
	m.mu.Unlock()

	var total int64
	for _, g := range found {
		total += g.Size
	}
	elapsed := m.now().Sub(start)

	msg := fmt.Sprintf("Detectados %d jogos .lua", len(found))
	if len(found) == 0 {
		msg = "Nenhum jogo .lua detectado"
	}
	m.log.Info("Plugin scripts detected", "games", len(found), "size", utils.FormatSize(total), "elapsed", elapsed.Round(time.Millisecond))

	return &Detection{
		Games:          found,
		TotalGames:     len(found),
		TotalSize:      total,
		ProcessingTime: fmt.Sprintf("%.2fs", elapsed.Seconds()),
		Message:        msg,
	}, nil
}

func (m *Manager) scan(dir string) ([]Game, error) {
	if ok, _ := afero.DirExists(m.fs, dir); !ok {
		m.log.Warn("Plugin directory not found", "path", dir)
		return []Game{}, nil
	}

	matches, err := afero.Glob(m.fs, filepath.Join(dir, "*.lua"))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	found := make([]Game, 0, len(matches))
	for _, path := range matches {
		name := filepath.Base(path)
		appid := strings.TrimSuffix(name, filepath.Ext(name))
		if !validStem(appid) {
			continue
		}

		info, err := m.fs.Stat(path)
		if err != nil {
			m.log.Debug("Skipping unreadable script", "path", path, "error", err)
			continue
		}
		if info.Size() < constants.MinPayloadSize {
			continue
		}

		g := Game{
			AppID:         appid,
			Name:          fallbackName(appid),
			Type:          "lua",
			FilePath:      path,
			FileName:      name,
			Size:          info.Size(),
			SizeFormatted: utils.FormatSize(info.Size()),
			InstallDate:   info.ModTime().Format(dateLayout),
			CreatedDate:   info.ModTime().Format(dateLayout),
			IsValid:       true,
		}
		if src, err := afero.ReadFile(m.fs, path); err == nil {
			script := luaplugin.Inspect(string(src))
			g.AppCount = script.AppCount()
			g.DepotCount = script.DepotCount()
		}
		found = append(found, g)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].AppID < found[j].AppID })
	return found, nil
}

func (m *Manager) resolveNames(ctx context.Context, found []Game) {
	if m.names == nil {
		return
	}
	type named struct {
		name      string
		fromCache bool
	}
	results := workerpool.Map(ctx, found, constants.NameWorkers, func(ctx context.Context, g Game) (named, error) {
		name, fromCache := m.names.AppName(ctx, g.AppID)
		return named{name: name, fromCache: fromCache}, nil
	})

	hits := 0
	for i, r := range results {
		if !r.OK() || r.Value.name == "" {
			continue
		}
		found[i].Name = r.Value.name
		found[i].RealName = r.Value.name
		found[i].NameFromCache = r.Value.fromCache
		if r.Value.fromCache {
			hits++
		}
	}
	m.log.Debug("Names resolved", "games", len(found), "from_cache", hits)
}

// Detected returns a copy of the last detection.
func (m *Manager) Detected() []Game {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Game, len(m.detected))
	copy(out, m.detected)
	return out
}

// Get returns the detected game with appid.
func (m *Manager) Get(appid string) (Game, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.detected {
		if g.AppID == appid {
			return g, true
		}
	}
	return Game{}, false
}

// Refresh looks up the name of a detected game again.
func (m *Manager) Refresh(ctx context.Context, appid string) (Game, error) {
	if _, ok := m.Get(appid); !ok {
		return Game{}, fmt.Errorf("%w: %s", ErrGameNotDetected, appid)
	}

	var name string
	var fromCache bool
	if m.names != nil {
		name, fromCache = m.names.AppName(ctx, appid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.detected {
		if m.detected[i].AppID != appid {
			continue
		}
		if name != "" {
			m.detected[i].Name = name
			m.detected[i].RealName = name
			m.detected[i].NameFromCache = fromCache
		}
		return m.detected[i], nil
	}
	return Game{}, fmt.Errorf("%w: %s", ErrGameNotDetected, appid)
}

// Resolve maps appids to detected games, skipping unknown ones.
func (m *Manager) Resolve(appids []string) []Game {
	out := make([]Game, 0, len(appids))
	for _, id := range appids {
		if g, ok := m.Get(id); ok {
			out = append(out, g)
		}
	}
	return out
}

func (m *Manager) copyFile(src, dst string) error {
	in, err := m.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := m.fs.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Backup copies the scripts of games into <dir>/<timestamp>/<appid>/ with a
// metadata.json per game and a backup_report.json for the run. An empty
// dir uses the configured backup directory.
func (m *Manager) Backup(ctx context.Context, games []Game, dir string) (*BackupResult, error) {
	if len(games) == 0 {
		return nil, ErrNoGamesSelected
	}
	if dir == "" {
		dir = m.cfg.BackupDir
	}

	now := m.now()
	root := filepath.Join(dir, now.Format(stampLayout))
	if err := m.fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	res := &BackupResult{
		ID:          uuid.NewString(),
		BackupPath:  root,
		TotalCount:  len(games),
		FailedGames: []Failure{},
	}

	var totalSize int64
	for i, g := range games {
		totalSize += g.Size
		m.log.Info("Backing up plugin script", "appid", g.AppID, "progress", fmt.Sprintf("%d/%d", i+1, len(games)))

		if err := m.backupOne(root, g, now); err != nil {
			m.log.Warn("Backup failed", "appid", g.AppID, "error", err)
			res.FailedGames = append(res.FailedGames, Failure{AppID: g.AppID, Error: err.Error()})
			continue
		}
		res.SuccessCount++
	}
	res.FailedCount = len(res.FailedGames)

	report := backupReportFile{
		ID:           res.ID,
		BackupDate:   now.Format(time.RFC3339),
		TotalGames:   res.TotalCount,
		SuccessCount: res.SuccessCount,
		FailedCount:  res.FailedCount,
		FailedGames:  res.FailedGames,
		BackupPath:   root,
		TotalSize:    totalSize,
	}
	res.ReportFile = filepath.Join(root, backupReport)
	if err := jsonutil.WriteFile(m.fs, res.ReportFile, report); err != nil {
		return nil, fmt.Errorf("writing backup report: %w", err)
	}

	res.Message = fmt.Sprintf("Backup concluído: %d/%d jogos", res.SuccessCount, res.TotalCount)
	m.log.Event(ctx, model.EventGamesBackup, "Plugin scripts backed up",
		"success", res.SuccessCount, "total", res.TotalCount, "path", root)
	return res, nil
}

func (m *Manager) backupOne(root string, g Game, now time.Time) error {
	if ok, _ := afero.Exists(m.fs, g.FilePath); !ok {
		return errors.New("arquivo não encontrado")
	}

	gameDir := filepath.Join(root, g.AppID)
	if err := m.fs.MkdirAll(gameDir, 0o755); err != nil {
		return err
	}
	if err := m.copyFile(g.FilePath, filepath.Join(gameDir, filepath.Base(g.FilePath))); err != nil {
		return err
	}

	name := g.Name
	if name == "" {
		name = fallbackName(g.AppID)
	}
	return jsonutil.WriteFile(m.fs, filepath.Join(gameDir, backupMetadata), backupMeta{
		AppID:         g.AppID,
		Name:          name,
		RealName:      g.RealName,
		BackupDate:    now.Format(time.RFC3339),
		OriginalPath:  g.FilePath,
		Size:          g.Size,
		SizeFormatted: g.SizeFormatted,
		InstallDate:   g.InstallDate,
		BackupVersion: backupVersion,
	})
}

// Remove deletes the scripts of games after copying each one into the
// removal backup directory. A script that is already gone counts as removed.
func (m *Manager) Remove(ctx context.Context, games []Game) (*RemoveResult, error) {
	if len(games) == 0 {
		return nil, ErrNoGamesSelected
	}

	backupDir := filepath.Join(m.cfg.RemovalBackupDir, m.now().Format(stampLayout))
	if err := m.fs.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating removal backup directory: %w", err)
	}

	res := &RemoveResult{
		TotalCount:  len(games),
		BackupDir:   backupDir,
		FailedGames: []Failure{},
	}
	removed := make(map[string]struct{}, len(games))

	for _, g := range games {
		exists, _ := afero.Exists(m.fs, g.FilePath)
		if !exists {
			m.log.Warn("Script already gone", "appid", g.AppID, "path", g.FilePath)
			res.RemovedCount++
			removed[g.AppID] = struct{}{}
			continue
		}

		safety := filepath.Join(backupDir, fmt.Sprintf("%s_%s%s", g.AppID, filepath.Base(g.FilePath), constants.BackupSuffix))
		if err := m.copyFile(g.FilePath, safety); err != nil {
			m.log.Warn("Could not back up script before removal", "appid", g.AppID, "error", err)
		}

		if err := m.fs.Remove(g.FilePath); err != nil {
			res.FailedGames = append(res.FailedGames, Failure{AppID: g.AppID, Error: err.Error()})
			continue
		}
		res.RemovedCount++
		removed[g.AppID] = struct{}{}
	}
	res.FailedCount = len(res.FailedGames)
	res.Message = fmt.Sprintf("Remoção concluída: %d/%d jogos", res.RemovedCount, res.TotalCount)

	m.mu.Lock()
	kept := m.detected[:0]
	for _, g := range m.detected {
		if _, gone := removed[g.AppID]; !gone {
			kept = append(kept, g)
		}
	}
	m.detected = kept
	m.mu.Unlock()
	if err := m.installed.Delete(ctx, installedKey); err != nil {
		m.log.Debug("Failed to drop installed-games cache", "error", err)
	}

	m.log.Event(ctx, model.EventGamesRemoved, "Plugin scripts removed",
		"removed", res.RemovedCount, "total", res.TotalCount, "path", backupDir)
	return res, nil
}

// Statistics summarizes the last detection.
func (m *Manager) Statistics() Statistics {
	found := m.Detected()
	stats := Statistics{
		TotalGames:    len(found),
		SizeBreakdown: map[string]int{"small": 0, "medium": 0, "large": 0},
	}
	if len(found) == 0 {
		stats.TotalSizeFormatted = utils.FormatSize(0)
		stats.AverageSize = utils.FormatSize(0)
		stats.Message = "Nenhum jogo detectado"
		return stats
	}

	for _, g := range found {
		stats.TotalSizeBytes += g.Size
		if g.NameFromCache {
			stats.FromCacheCount++
		}
		switch {
		case g.Size < smallScriptSize:
			stats.SizeBreakdown["small"]++
		case g.Size < largeScriptSize:
			stats.SizeBreakdown["medium"]++
		default:
			stats.SizeBreakdown["large"]++
		}
	}
	stats.FromAPICount = stats.TotalGames - stats.FromCacheCount
	stats.TotalSizeFormatted = utils.FormatSize(stats.TotalSizeBytes)
	stats.CachedPercent = utils.Percentage(stats.FromCacheCount, stats.TotalGames)
	stats.AverageSize = utils.FormatSize(stats.TotalSizeBytes / int64(stats.TotalGames))
	stats.AverageSizeKB = utils.FloatRound(float64(stats.TotalSizeBytes)/float64(stats.TotalGames)/1024, 2)
	stats.Message = fmt.Sprintf("%d jogos .lua, %s total", stats.TotalGames, stats.TotalSizeFormatted)
	return stats
}

// Validate checks that the script of a detected game is still on disk.
func (m *Manager) Validate(appid string) FileValidation {
	g, ok := m.Get(appid)
	if !ok {
		return FileValidation{AppID: appid, Error: "Jogo não encontrado"}
	}

	info, err := m.fs.Stat(g.FilePath)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, os.ErrNotExist) {
			msg = "Arquivo não existe"
		}
		return FileValidation{AppID: appid, FilePath: g.FilePath, Error: msg}
	}
	return FileValidation{
		Valid:        true,
		AppID:        appid,
		FilePath:     g.FilePath,
		Size:         info.Size(),
		SizeMatches:  info.Size() == g.Size,
		LastModified: info.ModTime().Format(time.RFC3339),
	}
}

// ValidatePath reports whether root can be scanned for plugin scripts.
func (m *Manager) ValidatePath(root string) PathValidation {
	root = steam.CleanPath(root)
	res := PathValidation{SteamPath: root}
	if ok, _ := afero.DirExists(m.fs, root); !ok {
		res.Error = "Caminho não existe"
		return res
	}

	layout := steam.NewLayout(root)
	res.Valid = true
	res.PluginPath = layout.PluginDir()
	res.HasPluginDir, _ = afero.DirExists(m.fs, res.PluginPath)
	if !res.HasPluginDir {
		return res
	}
	matches, err := afero.Glob(m.fs, filepath.Join(res.PluginPath, "*.lua"))
	res.LuaFilesCount = len(matches)
	res.Readable = err == nil
	if _, err := afero.ReadDir(m.fs, res.PluginPath); err != nil {
		res.Readable = false
	}
	return res
}

// Installed returns every app of the Steam libraries with its size, fix,
// DLC and plugin flags. The list is cached; force rebuilds it.
func (m *Manager) Installed(ctx context.Context, force bool) ([]InstalledGame, bool, error) {
	if !force {
		if list, ok := m.installed.Get(ctx, installedKey); ok {
			return list, true, nil
		}
	}

	layout, err := m.layout(ctx)
	if err != nil {
		return nil, false, err
	}
	apps, err := steam.InstalledApps(m.fs, layout)
	if err != nil {
		return nil, false, err
	}

	list := make([]InstalledGame, 0, len(apps))
	for _, app := range apps {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		g := InstalledGame{
			AppID:       app.AppID,
			Name:        app.Name,
			InstallDir:  app.InstallDir,
			InstallPath: app.InstallPath,
			Library:     app.Library,
			FixStatus:   "none",
		}
		if ok, _ := afero.Exists(m.fs, filepath.Join(layout.PluginDir(), app.AppID+".lua")); ok {
			g.LuaPlugin = true
		}
		if isDir, _ := afero.DirExists(m.fs, app.InstallPath); app.InstallPath != "" && isDir {
			g.HasFix = m.hasFix(app.InstallPath, app.AppID)
			g.Size = m.dirSize(app.InstallPath)
			g.HasDLC = m.looksLikeDLC(app.InstallPath)
		}
		if g.HasFix {
			g.FixStatus = "applied"
		}
		g.SizeFormatted = utils.FormatSize(g.Size)
		list = append(list, g)
	}

	if err := m.installed.Set(ctx, installedKey, list); err != nil {
		m.log.Warn("Failed to cache installed games", "error", err)
	}
	return list, false, nil
}

// ClearInstalled drops the cached installed-games list.
func (m *Manager) ClearInstalled(ctx context.Context) error {
	return m.installed.Clear(ctx)
}

var errWalkLimit = errors.New("walk limit reached")

// dirSize sums file sizes under dir, stopping after MaxSizeScanFiles files.
func (m *Manager) dirSize(dir string) int64 {
	var total int64
	files := 0
	_ = afero.Walk(m.fs, dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		total += info.Size()
		files++
		if files >= constants.MaxSizeScanFiles {
			return errWalkLimit
		}
		return nil
	})
	return total
}

// looksLikeDLC reports a dlc directory or files named like DLC content.
func (m *Manager) looksLikeDLC(dir string) bool {
	if ok, _ := afero.DirExists(m.fs, filepath.Join(dir, "dlc")); ok {
		return true
	}
	found := false
	files := 0
	_ = afero.Walk(m.fs, dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		name := strings.ToLower(info.Name())
		if strings.Contains(name, "dlc") || strings.HasSuffix(name, ".pak") {
			found = true
			return errWalkLimit
		}
		files++
		if files >= constants.MaxSizeScanFiles {
			return errWalkLimit
		}
		return nil
	})
	return found
}
