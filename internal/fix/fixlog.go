package fix

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/Guliveer/steam-gameloader-go/internal/constants"
)

// LogPath is the fix log of appid inside an install directory.
func LogPath(installPath, appid string) string {
	return filepath.Join(installPath, fmt.Sprintf(constants.FixLogPattern, appid))
}

// Installed reports whether a fix log exists for appid in installPath.
func Installed(afs afero.Fs, installPath, appid string) bool {
	if installPath == "" {
		return false
	}
	ok, _ := afero.Exists(afs, LogPath(installPath, appid))
	return ok
}

// LogInfo is the header of a fix log.
type LogInfo struct {
	GameName string
	FixType  string
	URL      string
	Files    []string
}

// WriteLog records an applied fix and the files it extracted.
func WriteLog(afs afero.Fs, installPath, appid string, info LogInfo) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Data: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "Jogo: %s\n", info.GameName)
	fmt.Fprintf(&b, "Tipo de Fix: %s\n", info.FixType)
	fmt.Fprintf(&b, "URL: %s\n", info.URL)
	b.WriteString(constants.FixLogFilesMarker + "\n")
	for _, f := range info.Files {
		b.WriteString(f + "\n")
	}
	return afero.WriteFile(afs, LogPath(installPath, appid), b.Bytes(), 0o644)
}

// ReadLogFiles returns the relative paths listed after the files marker.
func ReadLogFiles(afs afero.Fs, installPath, appid string) ([]string, error) {
	data, err := afero.ReadFile(afs, LogPath(installPath, appid))
	if err != nil {
		return nil, err
	}

	var files []string
	reading := false
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == constants.FixLogFilesMarker {
			reading = true
			continue
		}
		if reading && line != "" {
			files = append(files, line)
		}
	}
	return files, sc.Err()
}
