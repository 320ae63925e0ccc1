//go:build windows

package steam

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/windows/registry"
)

type registryProbe struct {
	root  registry.Key
	path  string
	value string
}

var registryProbes = []registryProbe{
	{registry.CURRENT_USER, `Software\Valve\Steam`, "SteamPath"},
	{registry.LOCAL_MACHINE, `SOFTWARE\Wow6432Node\Valve\Steam`, "InstallPath"},
	{registry.LOCAL_MACHINE, `SOFTWARE\Valve\Steam`, "InstallPath"},
}

// registryCandidates returns the Steam paths recorded in the registry.
func registryCandidates() []string {
	var out []string
	for _, probe := range registryProbes {
		key, err := registry.OpenKey(probe.root, probe.path, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		steamPath, _, err := key.GetStringValue(probe.value)
		key.Close()
		if err == nil && steamPath != "" {
			out = append(out, filepath.FromSlash(steamPath))
		}
	}
	return out
}

// defaultCandidates lists registry entries first, then common install folders.
func defaultCandidates() []string {
	out := registryCandidates()

	for _, env := range []string{"ProgramFiles(x86)", "ProgramFiles"} {
		if base := os.Getenv(env); base != "" {
			out = append(out, filepath.Join(base, "Steam"))
		}
	}
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		out = append(out, filepath.Join(local, "Programs", "Steam"))
	}
	for _, drive := range []string{`C:\`, `D:\`, `E:\`} {
		out = append(out,
			filepath.Join(drive, "Program Files (x86)", "Steam"),
			filepath.Join(drive, "Program Files", "Steam"),
			filepath.Join(drive, "Steam"),
		)
	}
	if home, err := os.UserHomeDir(); err == nil {
		out = append(out, filepath.Join(home, "Steam"))
	}
	return out
}
