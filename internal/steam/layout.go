// Package steam discovers the Steam installation, parses its text VDF/ACF
// files, scans libraries and login users, and controls the Steam process.
package steam

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Guliveer/steam-gameloader-go/internal/constants"
)

// ErrSteamNotFound is returned when no Steam installation could be located.
var ErrSteamNotFound = errors.New("steam installation not found")

// Layout resolves the well-known paths inside a Steam root.
type Layout struct {
	Root string
}

// NewLayout returns the Layout of root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) DepotCache() string { return filepath.Join(l.Root, "depotcache") }
func (l Layout) ConfigDir() string  { return filepath.Join(l.Root, "config") }
func (l Layout) PluginDir() string  { return filepath.Join(l.Root, "config", "stplug-in") }
func (l Layout) SteamApps() string  { return filepath.Join(l.Root, "steamapps") }
func (l Layout) HidDLL() string     { return filepath.Join(l.Root, constants.HidDLL) }
func (l Layout) DLLBackupDir() string {
	return filepath.Join(l.Root, constants.DLLBackupDir)
}

// SteamtoolsLua is the DLC unlock plugin file.
func (l Layout) SteamtoolsLua() string {
	return filepath.Join(l.PluginDir(), constants.SteamtoolsLua)
}

// LibraryFolders is steamapps/libraryfolders.vdf.
func (l Layout) LibraryFolders() string {
	return filepath.Join(l.SteamApps(), "libraryfolders.vdf")
}

// LoginUsers is config/loginusers.vdf.
func (l Layout) LoginUsers() string {
	return filepath.Join(l.ConfigDir(), "loginusers.vdf")
}

// markers are entries whose presence identifies a Steam root.
var markers = []string{"steam.exe", "steam.sh", "steamapps", "config"}

// LooksLikeSteam reports whether dir exists and contains a Steam marker.
func LooksLikeSteam(fs afero.Fs, dir string) bool {
	if dir == "" {
		return false
	}
	if ok, _ := afero.DirExists(fs, dir); !ok {
		return false
	}
	for _, m := range markers {
		if ok, _ := afero.Exists(fs, filepath.Join(dir, m)); ok {
			return true
		}
	}
	return false
}

// ValidateRoot checks that root holds steamapps and config and is writable.
func ValidateRoot(fs afero.Fs, root string) error {
	if root == "" {
		return ErrSteamNotFound
	}
	for _, sub := range []string{"steamapps", "config"} {
		if ok, _ := afero.DirExists(fs, filepath.Join(root, sub)); !ok {
			return fmt.Errorf("%s is not a steam root: missing %s", root, sub)
		}
	}
	if err := ProbeWritable(fs, root); err != nil {
		return fmt.Errorf("%s is not writable: %w", root, err)
	}
	return nil
}

// EnsureWritable creates dir if needed and verifies files can be created in it.
func EnsureWritable(fs afero.Fs, dir string) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return ProbeWritable(fs, dir)
}

// ProbeWritable writes and removes a probe file in dir.
func ProbeWritable(fs afero.Fs, dir string) error {
	probe := filepath.Join(dir, constants.WriteProbeFile)
	if err := afero.WriteFile(fs, probe, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := fs.Remove(probe); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
