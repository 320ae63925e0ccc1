//go:build !windows

package steam

import (
	"os"
	"path/filepath"
	"runtime"
)

// defaultCandidates lists the usual Steam roots for Linux and macOS.
func defaultCandidates() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return candidatesFor(runtime.GOOS, home)
}

func candidatesFor(goos, home string) []string {
	if goos == "darwin" {
		return []string{
			filepath.Join(home, "Library", "Application Support", "Steam"),
			"/Applications/Steam.app/Contents/MacOS",
		}
	}
	return []string{
		filepath.Join(home, ".steam", "steam"),
		filepath.Join(home, ".local", "share", "Steam"),
		filepath.Join(home, ".var", "app", "com.valvesoftware.Steam", ".steam", "steam"),
		filepath.Join(home, "Steam"),
		"/usr/share/steam",
		"/usr/local/share/steam",
		"/opt/steam",
	}
}
