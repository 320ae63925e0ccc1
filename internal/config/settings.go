package config

import (
	"time"

	"github.com/Guliveer/steam-gameloader-go/internal/constants"
)

// Config represents the full loader configuration.
// It is loaded from a YAML file and optionally overlaid with environment variables.
type Config struct {
	Server ServerConfig `yaml:"server"`

	Steam SteamConfig `yaml:"steam"`

	Paths PathsConfig `yaml:"paths"`

	Placement PlacementConfig `yaml:"placement"`

	Download DownloadConfig `yaml:"download"`

	Cache CacheConfig `yaml:"cache"`

	Notifications NotificationsConfig `yaml:"notifications"`

	Tray TrayConfig `yaml:"tray"`

	Log LogConfig `yaml:"log"`
}

// ServerConfig holds the local HTTP server settings.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	OpenBrowser *bool  `yaml:"open_browser,omitempty"`
}

// SteamConfig holds Steam discovery and process control settings.
type SteamConfig struct {
	Path            string        `yaml:"path"`
	PathCacheTTL    time.Duration `yaml:"path_cache_ttl"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PathsConfig holds the on-disk locations used by the loader.
type PathsConfig struct {
	DataDir          string `yaml:"data_dir"`
	CacheDir         string `yaml:"cache_dir"`
	BackupDir        string `yaml:"backup_dir"`
	RemovalBackupDir string `yaml:"removal_backup_dir"`
	FixesCatalog     string `yaml:"fixes_catalog"`
	DLLBase64        string `yaml:"dll_base64"`
	HistoryDB        string `yaml:"history_db"`
}

// PlacementConfig controls how acquired files are copied into Steam.
type PlacementConfig struct {
	MakeBackup        *bool `yaml:"make_backup,omitempty"`
	ExtractArchives   *bool `yaml:"extract_archives,omitempty"`
	OverwriteExisting *bool `yaml:"overwrite_existing,omitempty"`
	// StrictAppID rejects files whose name carries a different AppID than requested.
	StrictAppID       bool  `yaml:"strict_appid"`
}

// MirrorConfig is one archive mirror; URL must contain <appid>.
type MirrorConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// DownloadConfig holds the source cascade settings.
type DownloadConfig struct {
	Budget       time.Duration  `yaml:"budget"`
	GitEnabled   *bool          `yaml:"git_enabled,omitempty"`
	Mirrors      []MirrorConfig `yaml:"mirrors"`
	Repositories []string       `yaml:"repositories"`
}

// CacheConfig selects the cache backend and the per-cache TTLs.
type CacheConfig struct {
	Backend     string        `yaml:"backend"`
	RedisURL    string        `yaml:"redis_url,omitempty"`
	DownloadTTL time.Duration `yaml:"download_ttl"`
	SearchTTL   time.Duration `yaml:"search_ttl"`
	APICheckTTL time.Duration `yaml:"api_check_ttl"`
	NamesTTL    time.Duration `yaml:"names_ttl"`
}

// Cache backends.
const (
	CacheBackendFile   = "file"
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// NotificationsConfig holds all notification provider configurations.
type NotificationsConfig struct {
	Discord *DiscordConfig `yaml:"discord,omitempty"`
	Webhook *WebhookConfig `yaml:"webhook,omitempty"`
}

// DiscordConfig holds Discord notification settings.
type DiscordConfig struct {
	Enabled    bool     `yaml:"enabled"`
	WebhookURL string   `yaml:"webhook_url,omitempty"`
	Events     []string `yaml:"events"`
}

// WebhookConfig holds generic webhook notification settings.
type WebhookConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Endpoint string   `yaml:"endpoint,omitempty"`
	Method   string   `yaml:"method"`
	Events   []string `yaml:"events"`
}

// TrayConfig holds the system tray settings.
type TrayConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// ShouldOpenBrowser returns whether the UI is opened on startup. Defaults to true.
func (c *Config) ShouldOpenBrowser() bool { return boolOr(c.Server.OpenBrowser, true) }

// TrayEnabled returns whether the tray icon runs. Defaults to true.
func (c *Config) TrayEnabled() bool { return boolOr(c.Tray.Enabled, true) }

// GitEnabled returns whether the git stages of the cascade run. Defaults to true.
func (c *Config) GitEnabled() bool { return boolOr(c.Download.GitEnabled, true) }

// MakeBackupEnabled returns whether replaced files are kept as .backup. Defaults to true.
func (p PlacementConfig) MakeBackupEnabled() bool { return boolOr(p.MakeBackup, true) }

// ExtractArchivesEnabled returns whether zip payloads are unpacked. Defaults to true.
func (p PlacementConfig) ExtractArchivesEnabled() bool { return boolOr(p.ExtractArchives, true) }

// OverwriteEnabled returns whether existing destinations are replaced. Defaults to true.
func (p PlacementConfig) OverwriteEnabled() bool { return boolOr(p.OverwriteExisting, true) }

// MirrorList converts the configured mirrors to constants.Mirror values.
func (d DownloadConfig) MirrorList() []constants.Mirror {
	out := make([]constants.Mirror, 0, len(d.Mirrors))
	for _, m := range d.Mirrors {
		out = append(out, constants.Mirror{Name: m.Name, URL: m.URL})
	}
	return out
}
