// Package dll restores the hid.dll of the Steam root from a bundled
// base64 blob and reports its state.
package dll

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/Guliveer/steam-gameloader-go/internal/cache"
	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/events"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
	"github.com/Guliveer/steam-gameloader-go/internal/steam"
)

const (
	minDLLSize  = 1024
	maxDLLSize  = 50 << 20
	statusKey   = "status"
	stampLayout = "20060102_150405"
)

var (
	ErrBase64NotFound = errors.New("hid_dll_base64.txt not found")
	ErrBase64Empty    = errors.New("hid.dll base64 data is empty")
	ErrInvalidDLL     = errors.New("hid.dll failed verification")
)

// Locator finds the Steam root.
type Locator interface {
	Detect(ctx context.Context) (string, error)
	Clear()
}

// Status is the state of the hid.dll of the Steam root.
type Status struct {
	Exists          bool      `json:"exists"`
	Valid           bool      `json:"valid"`
	Path            string    `json:"path"`
	Size            int64     `json:"size"`
	SteamFound      bool      `json:"steam_found"`
	SteamPath       string    `json:"steam_path"`
	Writable        bool      `json:"writable"`
	BackupExists    bool      `json:"backup_exists"`
	Base64FileFound bool      `json:"base64_file_found"`
	LastVerified    time.Time `json:"last_verified"`
}

// SimpleStatus is the short form of Status used by the header and tray.
type SimpleStatus struct {
	DLLAvailable bool `json:"dll_available"`
	DLLExists    bool `json:"dll_exists"`
	SteamFound   bool `json:"steam_found"`
	Writable     bool `json:"writable"`
	Ready        bool `json:"ready"`
}

// InitResult is the outcome of Initialize.
type InitResult struct {
	Success    bool     `json:"success"`
	SteamFound bool     `json:"steam_found"`
	DLLCreated bool     `json:"dll_created"`
	DLLValid   bool     `json:"dll_valid"`
	Errors     []string `json:"errors"`
}

// Config configures a Manager.
type Config struct {
	// Base64Path is tried before the default locations.
	Base64Path string
	StatusTTL  time.Duration
}

// Manager writes and checks hid.dll.
type Manager struct {
	fs         afero.Fs
	locator    Locator
	events     events.Publisher
	log        *logger.Logger
	cfg        Config
	status     *cache.TTL[Status]
	now        func() time.Time
	candidates func() []string

	mu         sync.Mutex
	base64Path string
	resolved   bool
	once       *sync.Once
	initResult InitResult
}

// NewManager creates a Manager. pub may be nil.
func NewManager(afs afero.Fs, locator Locator, pub events.Publisher, cfg Config, log *logger.Logger) *Manager {
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = constants.DLLStatusTTL
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	m := &Manager{
		fs:      afs,
		locator: locator,
		events:  pub,
		log:     log,
		cfg:     cfg,
		status:  cache.NewTTL[Status](cache.NewMemoryStore(), "dll_status", cfg.StatusTTL),
		now:     time.Now,
		once:    new(sync.Once),
	}
	m.candidates = m.defaultCandidates
	return m
}

func (m *Manager) defaultCandidates() []string {
	var dirs []string
	if m.cfg.Base64Path != "" {
		dirs = append(dirs, m.cfg.Base64Path)
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		dirs = append(dirs,
			filepath.Join(dir, "config", constants.HidDLLBase64File),
			filepath.Join(dir, constants.HidDLLBase64File))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs,
			filepath.Join(wd, "config", constants.HidDLLBase64File),
			filepath.Join(wd, constants.HidDLLBase64File))
	}
	return dirs
}

// Base64Path returns the location of hid_dll_base64.txt. The answer,
// found or not, is kept until Reset.
func (m *Manager) Base64Path() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.resolved {
		m.resolved = true
		m.base64Path = ""
		for _, p := range m.candidates() {
			info, err := m.fs.Stat(p)
			if err == nil && !info.IsDir() {
				m.base64Path = p
				m.log.Debug("Found hid.dll base64 data", "path", p)
				break
			}
		}
		if m.base64Path == "" {
			m.log.Error("hid_dll_base64.txt not found")
		}
	}
	if m.base64Path == "" {
		return "", ErrBase64NotFound
	}
	return m.base64Path, nil
}

// Verify checks that path holds a plausible PE image: size between 1KB
// and 50MB and an MZ header.
func (m *Manager) Verify(path string) error {
	info, err := m.fs.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidDLL, path)
	}
	if size := info.Size(); size <= minDLLSize || size >= maxDLLSize {
		return fmt.Errorf("%w: size %d out of range", ErrInvalidDLL, size)
	}

	f, err := m.fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, 2)
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("reading header of %s: %w", path, err)
	}
	if !bytes.Equal(header, []byte("MZ")) {
		return fmt.Errorf("%w: missing MZ header", ErrInvalidDLL)
	}
	return nil
}

func (m *Manager) decode() ([]byte, error) {
	path, err := m.Base64Path()
	if err != nil {
		return nil, err
	}
	raw, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	data := strings.Join(strings.Fields(string(raw)), "")
	if data == "" {
		return nil, ErrBase64Empty
	}
	if rem := len(data) % 4; rem != 0 {
		m.log.Warn("Base64 data looks truncated, padding it", "path", path)
		data += strings.Repeat("=", 4-rem)
	}
	out, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return out, nil
}

func (m *Manager) backup(layout steam.Layout) (string, error) {
	current := layout.HidDLL()
	if ok, _ := afero.Exists(m.fs, current); !ok {
		return "", nil
	}
	dir := layout.DLLBackupDir()
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, fmt.Sprintf("%s_%s%s", m.now().Format(stampLayout), constants.HidDLL, constants.BackupSuffix))
	data, err := afero.ReadFile(m.fs, current)
	if err != nil {
		return "", err
	}
	if err := afero.WriteFile(m.fs, dst, data, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

// Create writes hid.dll into root unless a valid one is already there.
// It reports whether a new file was written.
func (m *Manager) Create(ctx context.Context, root string) (bool, error) {
	if root == "" {
		return false, steam.ErrSteamNotFound
	}
	if err := steam.ValidateRoot(m.fs, root); err != nil {
		return false, err
	}

	layout := steam.NewLayout(root)
	target := layout.HidDLL()
	if m.Verify(target) == nil {
		m.log.Debug("hid.dll already valid", "path", target)
		return false, nil
	}

	data, err := m.decode()
	if err != nil {
		return false, err
	}

	if backup, err := m.backup(layout); err != nil {
		m.log.Warn("Could not back up hid.dll", "error", err)
	} else if backup != "" {
		m.log.Info("Backed up hid.dll", "path", backup)
	}

	if err := afero.WriteFile(m.fs, target, data, 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", target, err)
	}
	if err := m.Verify(target); err != nil {
		return false, err
	}

	_ = m.status.Clear(ctx)
	m.log.Event(ctx, model.EventDLLRepaired, "hid.dll restored", "path", target, "size", len(data))
	m.events.Publish(events.DLLRepaired, "", map[string]any{"path": target, "size": len(data)})
	return true, nil
}

// Recreate restores hid.dll into root, or into the detected Steam root when
// root is empty. If that fails the Steam root is detected again and the
// restore retried there.
func (m *Manager) Recreate(ctx context.Context, root string) error {
	if root == "" {
		root, _ = m.locator.Detect(ctx)
	}
	_, err := m.Create(ctx, root)
	if err == nil {
		return nil
	}
	m.log.Warn("hid.dll restore failed, detecting Steam again", "path", root, "error", err)

	m.locator.Clear()
	fresh, detectErr := m.locator.Detect(ctx)
	if detectErr != nil || fresh == root {
		return err
	}
	if _, err := m.Create(ctx, fresh); err != nil {
		return err
	}
	return nil
}

// Status returns the hid.dll state, memoized for the configured TTL.
func (m *Manager) Status(ctx context.Context) Status {
	if st, ok := m.status.Get(ctx, statusKey); ok {
		return st
	}

	st := Status{LastVerified: m.now()}
	_, err := m.Base64Path()
	st.Base64FileFound = err == nil

	root, err := m.locator.Detect(ctx)
	if err == nil && root != "" {
		layout := steam.NewLayout(root)
		st.SteamFound = true
		st.SteamPath = root
		st.Path = layout.HidDLL()
		if info, err := m.fs.Stat(st.Path); err == nil {
			st.Exists = true
			st.Size = info.Size()
			st.Valid = m.Verify(st.Path) == nil
		}
		st.Writable = steam.ProbeWritable(m.fs, root) == nil
		backups, _ := afero.Glob(m.fs, filepath.Join(layout.DLLBackupDir(), "*"+constants.BackupSuffix))
		st.BackupExists = len(backups) > 0
	}

	if err := m.status.Set(ctx, statusKey, st); err != nil {
		m.log.Debug("Failed to memoize DLL status", "error", err)
	}
	return st
}

// Simple returns the short status.
func (m *Manager) Simple(ctx context.Context) SimpleStatus {
	st := m.Status(ctx)
	return SimpleStatus{
		DLLAvailable: st.Valid,
		DLLExists:    st.Exists,
		SteamFound:   st.SteamFound,
		Writable:     st.Writable,
		Ready:        st.Valid && st.SteamFound,
	}
}

// Initialize restores hid.dll once per process; later calls return the
// first result until Reset.
func (m *Manager) Initialize(ctx context.Context) InitResult {
	m.mu.Lock()
	once := m.once
	m.mu.Unlock()

	once.Do(func() {
		res := m.initialize(ctx)
		m.mu.Lock()
		m.initResult = res
		m.mu.Unlock()
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initResult
}

func (m *Manager) initialize(ctx context.Context) InitResult {
	res := InitResult{Errors: []string{}}

	root, err := m.locator.Detect(ctx)
	if err != nil || root == "" {
		res.Errors = append(res.Errors, "Steam nao encontrado")
		return res
	}
	res.SteamFound = true

	if err := m.Recreate(ctx, root); err != nil {
		m.log.Error("hid.dll initialization failed", "error", err)
		res.Errors = append(res.Errors, "Falha ao criar DLL: "+err.Error())
		return res
	}
	res.DLLCreated = true

	_ = m.status.Clear(ctx)
	st := m.Status(ctx)
	res.DLLValid = st.Valid
	res.Success = st.Valid
	if !st.Valid {
		res.Errors = append(res.Errors, "DLL criada mas invalida")
	}
	return res
}

// Reset forgets the base64 location, the status memo and the Initialize result.
func (m *Manager) Reset(ctx context.Context) {
	m.mu.Lock()
	m.resolved = false
	m.base64Path = ""
	m.once = new(sync.Once)
	m.initResult = InitResult{}
	m.mu.Unlock()
	_ = m.status.Clear(ctx)
	m.log.Info("DLL state reset")
}

func yesNo(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}

// Report renders the status as a plain-text report.
func (m *Manager) Report(ctx context.Context) string {
	st := m.Status(ctx)
	lines := []string{
		"RELATORIO DETALHADO HID.DLL",
		"Caminho Steam: " + st.SteamPath,
		"Steam encontrado: " + yesNo(st.SteamFound, "SIM", "NAO"),
		"DLL existe: " + yesNo(st.Exists, "SIM", "NAO"),
		"DLL valida: " + yesNo(st.Valid, "SIM", "NAO"),
		fmt.Sprintf("Tamanho DLL: %d bytes", st.Size),
		"Gravavel: " + yesNo(st.Writable, "SIM", "NAO"),
		"Backup: " + yesNo(st.BackupExists, "DISPONIVEL", "NAO"),
		"Base64: " + yesNo(st.Base64FileFound, "ENCONTRADO", "NAO ENCONTRADO"),
	}
	return strings.Join(lines, "\n")
}
