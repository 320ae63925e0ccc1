// Package placement classifies game payload files and copies them into the
// Steam directories the unlock plugin reads from.
package placement

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrUnsupportedExtension is returned for files that have no Steam destination.
var ErrUnsupportedExtension = errors.New("unsupported file type")

// Kind is the Steam destination of a payload file.
type Kind string

const (
	KindDepotCache Kind = "depotcache"
	KindPlugin     Kind = "stplug-in"
)

// Classify maps a file name to its destination by extension, case-insensitively.
func Classify(name string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".manifest":
		return KindDepotCache, nil
	case ".lua":
		return KindPlugin, nil
	default:
		return "", ErrUnsupportedExtension
	}
}

// ExtractAppID guesses the AppID a payload file belongs to. A fully numeric
// stem wins; otherwise the first run of 5 to 7 digits that is not part of a
// longer number is used.
func ExtractAppID(name string) (string, bool) {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if isDigits(stem) {
		return stem, true
	}

	for i := 0; i < len(base); {
		if !isDigit(base[i]) {
			i++
			continue
		}
		j := i
		for j < len(base) && isDigit(base[j]) {
			j++
		}
		if n := j - i; n >= 5 && n <= 7 {
			return base[i:j], true
		}
		i = j
	}
	return "", false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

var systemFiles = map[string]struct{}{
	"thumbs.db":       {},
	".ds_store":       {},
	"desktop.ini":     {},
	".localized":      {},
	"._.ds_store":     {},
	".gitignore":      {},
	"readme.txt":      {},
	"readme.md":       {},
	"license.txt":     {},
	".gitkeep":        {},
	".gitattributes":  {},
	".gitmodules":     {},
	"placeholder.txt": {},
	".placeholder":    {},
}

// IsSystemFile reports whether name is OS or repository clutter that is never placed.
func IsSystemFile(name string) bool {
	_, ok := systemFiles[strings.ToLower(filepath.Base(name))]
	return ok
}
