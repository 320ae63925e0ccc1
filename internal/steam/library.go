package steam

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// InstalledApp is one appmanifest_<appid>.acf entry of a library.
type InstalledApp struct {
	AppID       string `json:"appid"`
	Name        string `json:"name"`
	InstallDir  string `json:"install_dir"`
	InstallPath string `json:"install_path"`
	Library     string `json:"library"`
	SizeOnDisk  int64  `json:"size_on_disk"`
	LastUpdated int64  `json:"last_updated"`
}

func readVDF(fs afero.Fs, path string) (*Node, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseVDF(f)
}

// Libraries returns the Steam library roots: the Steam root itself followed
// by every path listed in libraryfolders.vdf, deduplicated.
func Libraries(fs afero.Fs, layout Layout) []string {
	libs := []string{layout.Root}
	seen := map[string]struct{}{strings.ToLower(filepath.Clean(layout.Root)): {}}

	add := func(p string) {
		if p == "" {
			return
		}
		p = filepath.Clean(filepath.FromSlash(p))
		key := strings.ToLower(p)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		libs = append(libs, p)
	}

	root, err := readVDF(fs, layout.LibraryFolders())
	if err != nil {
		return libs
	}

	folders := root.Child("libraryfolders")
	if folders == nil {
		return libs
	}
	for _, entry := range folders.Children {
		if _, err := strconv.Atoi(entry.Key); err != nil {
			continue
		}
		if entry.IsBlock {
			add(entry.Get("path"))
		} else {
			add(entry.Value)
		}
	}
	return libs
}

// ParseAppManifest decodes one appmanifest .acf file.
func ParseAppManifest(fs afero.Fs, path string) (*InstalledApp, error) {
	root, err := readVDF(fs, path)
	if err != nil {
		return nil, err
	}

	state := root.Child("AppState")
	if state == nil {
		return nil, fmt.Errorf("%s: missing AppState", path)
	}

	app := &InstalledApp{
		AppID:      state.Get("appid"),
		Name:       state.Get("name"),
		InstallDir: state.Get("installdir"),
	}
	if app.AppID == "" {
		return nil, fmt.Errorf("%s: missing appid", path)
	}
	app.SizeOnDisk, _ = strconv.ParseInt(state.Get("SizeOnDisk"), 10, 64)
	app.LastUpdated, _ = strconv.ParseInt(state.Get("LastUpdated"), 10, 64)
	if app.Name == "" {
		app.Name = "AppID " + app.AppID
	}
	return app, nil
}

// InstalledApps scans every library for appmanifest files, sorted by name.
// Unreadable manifests are skipped.
func InstalledApps(fs afero.Fs, layout Layout) ([]InstalledApp, error) {
	var apps []InstalledApp
	seen := make(map[string]struct{})

	for _, lib := range Libraries(fs, layout) {
		steamapps := filepath.Join(lib, "steamapps")
		matches, err := afero.Glob(fs, filepath.Join(steamapps, "appmanifest_*.acf"))
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", steamapps, err)
		}
		for _, m := range matches {
			app, err := ParseAppManifest(fs, m)
			if err != nil {
				continue
			}
			if _, dup := seen[app.AppID]; dup {
				continue
			}
			seen[app.AppID] = struct{}{}

			app.Library = lib
			if app.InstallDir != "" {
				app.InstallPath = filepath.Join(steamapps, "common", app.InstallDir)
			}
			apps = append(apps, *app)
		}
	}

	sort.SliceStable(apps, func(i, j int) bool {
		return strings.ToLower(apps[i].Name) < strings.ToLower(apps[j].Name)
	})
	return apps, nil
}
