package steam

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/Guliveer/steam-gameloader-go/internal/logger"
)

// Locator finds the Steam root and caches the answer for a fixed TTL.
type Locator struct {
	fs         afero.Fs
	log        *logger.Logger
	ttl        time.Duration
	candidates func() []string
	now        func() time.Time
	group      singleflight.Group

	mu       sync.Mutex
	override string
	cached   string
	cachedAt time.Time
}

// NewLocator creates a Locator. A non-empty override is tried first.
func NewLocator(fs afero.Fs, override string, ttl time.Duration, log *logger.Logger) *Locator {
	if log == nil {
		log = logger.Nop()
	}
	return &Locator{
		fs:         fs,
		log:        log,
		ttl:        ttl,
		candidates: defaultCandidates,
		now:        time.Now,
		override:   CleanPath(override),
	}
}

// SetCandidates replaces the discovery candidates. Used by tests.
func (l *Locator) SetCandidates(fn func() []string) {
	l.candidates = fn
}

// SetOverride pins the Steam root to path and drops the cached answer.
func (l *Locator) SetOverride(path string) {
	l.mu.Lock()
	l.override = CleanPath(path)
	l.cached = ""
	l.mu.Unlock()
}

// Clear drops the cached answer so the next Detect rescans.
func (l *Locator) Clear() {
	l.mu.Lock()
	l.cached = ""
	l.cachedAt = time.Time{}
	l.mu.Unlock()
}

// Cached returns the cached root and its age, if any.
func (l *Locator) Cached() (string, time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cached == "" {
		return "", 0, false
	}
	return l.cached, l.now().Sub(l.cachedAt), true
}

// Detect returns the Steam root, using the cache while it is fresh.
// Concurrent callers share one scan.
func (l *Locator) Detect(ctx context.Context) (string, error) {
	l.mu.Lock()
	if l.cached != "" && l.now().Sub(l.cachedAt) < l.ttl {
		path := l.cached
		l.mu.Unlock()
		return path, nil
	}
	override := l.override
	l.mu.Unlock()

	v, err, _ := l.group.Do("detect", func() (any, error) {
		path, err := l.scan(ctx, override)
		if err != nil {
			return "", err
		}
		l.mu.Lock()
		l.cached = path
		l.cachedAt = l.now()
		l.mu.Unlock()
		return path, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (l *Locator) scan(ctx context.Context, override string) (string, error) {
	if override != "" {
		if LooksLikeSteam(l.fs, override) {
			l.log.Debug("Using configured Steam path", "path", override)
			return override, nil
		}
		l.log.Warn("Configured Steam path is invalid, falling back to detection", "path", override)
	}

	seen := make(map[string]struct{})
	for _, candidate := range l.candidates() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate = CleanPath(candidate)
		if candidate == "" {
			continue
		}
		key := strings.ToLower(candidate)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		if LooksLikeSteam(l.fs, candidate) {
			l.log.Info("Steam found", "path", candidate)
			return candidate, nil
		}
	}
	return "", ErrSteamNotFound
}

// ManualValidation describes a user-supplied Steam path.
type ManualValidation struct {
	Path          string `json:"path"`
	Exists        bool   `json:"exists"`
	Valid         bool   `json:"valid"`
	Writable      bool   `json:"writable"`
	HasSteamApps  bool   `json:"has_steamapps"`
	HasConfig     bool   `json:"has_config"`
	HasExecutable bool   `json:"has_executable"`
	Message       string `json:"message"`
}

// ValidateManual normalizes and inspects a path typed by the user.
func (l *Locator) ValidateManual(path string) ManualValidation {
	path = CleanPath(path)
	if strings.EqualFold(filepath.Base(path), "steam.exe") {
		path = filepath.Dir(path)
	}

	res := ManualValidation{Path: path}
	if path == "" {
		res.Message = "Caminho vazio"
		return res
	}

	res.Exists, _ = afero.DirExists(l.fs, path)
	if !res.Exists {
		res.Message = "Diretório não existe"
		return res
	}

	res.HasSteamApps, _ = afero.DirExists(l.fs, filepath.Join(path, "steamapps"))
	res.HasConfig, _ = afero.DirExists(l.fs, filepath.Join(path, "config"))
	exe, _ := afero.Exists(l.fs, filepath.Join(path, "steam.exe"))
	sh, _ := afero.Exists(l.fs, filepath.Join(path, "steam.sh"))
	res.HasExecutable = exe || sh
	res.Writable = ProbeWritable(l.fs, path) == nil
	res.Valid = LooksLikeSteam(l.fs, path)

	switch {
	case !res.Valid:
		res.Message = "Diretório não parece ser uma instalação do Steam"
	case !res.Writable:
		res.Message = "Steam encontrado, mas sem permissão de escrita"
	default:
		res.Message = "Caminho do Steam válido"
	}
	return res
}

// CleanPath trims whitespace and quotes, expands ~ and cleans the path.
func CleanPath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, `"'`)
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
