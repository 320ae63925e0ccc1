package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Guliveer/steam-gameloader-go/internal/constants"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	require.Equal(t, DefaultAddr, cfg.Server.Addr)
	require.Equal(t, CacheBackendFile, cfg.Cache.Backend)
	require.Equal(t, constants.DefaultDownloadBudget, cfg.Download.Budget)
	require.Len(t, cfg.Download.Mirrors, len(constants.DefaultMirrors))
	require.Equal(t, "Sadie", cfg.Download.Mirrors[0].Name)
	require.Equal(t, filepath.Join("data", "cache"), cfg.Paths.CacheDir)
	require.True(t, cfg.ShouldOpenBrowser())
	require.True(t, cfg.TrayEnabled())
	require.True(t, cfg.GitEnabled())
	require.True(t, cfg.Placement.MakeBackupEnabled())
	require.False(t, cfg.Placement.StrictAppID)
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:8080"
  open_browser: false
download:
  budget: 90s
  git_enabled: false
  mirrors:
    - name: Local
      url: "http://localhost/<appid>.zip"
placement:
  strict_appid: true
  make_backup: false
cache:
  backend: memory
  search_ttl: 10m
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	require.False(t, cfg.ShouldOpenBrowser())
	require.False(t, cfg.GitEnabled())
	require.Equal(t, 90*time.Second, cfg.Download.Budget)
	require.Equal(t, []constants.Mirror{{Name: "Local", URL: "http://localhost/<appid>.zip"}}, cfg.Download.MirrorList())
	require.True(t, cfg.Placement.StrictAppID)
	require.False(t, cfg.Placement.MakeBackupEnabled())
	require.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	require.Equal(t, 10*time.Minute, cfg.Cache.SearchTTL)
	require.Equal(t, constants.DownloadCacheTTL, cfg.Cache.DownloadTTL)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GAMELOADER_ADDR", "0.0.0.0:9000")
	t.Setenv("STEAM_PATH", "/games/steam")
	t.Setenv("DISCORD_WEBHOOK", "https://discord.example/hook")
	t.Setenv("GAMELOADER_NO_TRAY", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	require.Equal(t, "/games/steam", cfg.Steam.Path)
	require.NotNil(t, cfg.Notifications.Discord)
	require.True(t, cfg.Notifications.Discord.Enabled)
	require.Equal(t, "https://discord.example/hook", cfg.Notifications.Discord.WebhookURL)
	require.False(t, cfg.TrayEnabled())
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "mongo" }, "unknown cache backend"},
		{"redis without url", func(c *Config) { c.Cache.Backend = CacheBackendRedis }, "requires redis_url"},
		{"short budget", func(c *Config) { c.Download.Budget = time.Second }, "too short"},
		{"mirror without placeholder", func(c *Config) {
			c.Download.Mirrors = []MirrorConfig{{Name: "x", URL: "http://x/file.zip"}}
		}, "must contain <appid>"},
		{"discord without url", func(c *Config) {
			c.Notifications.Discord = &DiscordConfig{Enabled: true}
		}, "webhook_url not set"},
		{"webhook without endpoint", func(c *Config) {
			c.Notifications.Webhook = &WebhookConfig{Enabled: true}
		}, "endpoint not set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	_, err := Load(path)
	require.ErrorContains(t, err, "parsing config file")
}
