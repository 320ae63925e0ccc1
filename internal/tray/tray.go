// Package tray shows the loader in the system tray: a status icon, the
// Steam state and shortcuts to the web interface.
package tray

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/energye/systray"

	"github.com/Guliveer/steam-gameloader-go/internal/constants"
)

const appTitle = "GameLoader"

// Status is what the tray displays.
type Status struct {
	SteamFound   bool
	SteamRunning bool
	DLLReady     bool
	Username     string
	Address      string
}

// Config holds the callbacks and getters of the tray.
type Config struct {
	OnOpenWebUI   func()
	OnToggleSteam func(running bool)
	OnRepairDLL   func()
	OnQuit        func()
	GetStatus     func() Status
}

// Tray manages the system tray icon and menu.
type Tray struct {
	config Config
	mu     sync.RWMutex
	status Status

	closed   bool
	closeMu  sync.RWMutex
	quitOnce sync.Once
	ready    chan struct{}

	mStatus *systray.MenuItem
	mDLL    *systray.MenuItem
	mSteam  *systray.MenuItem
	mRepair *systray.MenuItem
	mOpenUI *systray.MenuItem
	mQuit   *systray.MenuItem
}

// New creates a Tray.
func New(cfg Config) *Tray {
	return &Tray{config: cfg, ready: make(chan struct{})}
}

// Run starts the system tray. It blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Watch refreshes the status every TrayRefreshInterval until ctx ends.
func (t *Tray) Watch(ctx context.Context) {
	select {
	case <-t.ready:
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(constants.TrayRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Refresh()
		}
	}
}

// Refresh pulls a new status from GetStatus.
func (t *Tray) Refresh() {
	if t.config.GetStatus != nil {
		t.UpdateStatus(t.config.GetStatus())
	}
}

// UpdateStatus redraws the icon, tooltip and menu for s.
func (t *Tray) UpdateStatus(s Status) {
	t.closeMu.RLock()
	closed := t.closed
	t.closeMu.RUnlock()
	if closed {
		return
	}

	t.mu.Lock()
	t.status = s
	t.mu.Unlock()

	systray.SetIcon(iconOf(s))
	systray.SetTooltip(tooltip(s))
	t.updateMenu(s)
}

// Quit closes the tray.
func (t *Tray) Quit() {
	t.quitOnce.Do(func() {
		t.closeMu.Lock()
		t.closed = true
		t.closeMu.Unlock()
		systray.Quit()
	})
}

func (t *Tray) onReady() {
	systray.SetIcon(IconWarning())
	systray.SetTitle(appTitle)
	systray.SetTooltip(appTitle)

	title := systray.AddMenuItem(appTitle, "")
	title.Disable()
	systray.AddSeparator()

	t.mStatus = systray.AddMenuItem("Procurando Steam...", "Estado do Steam")
	t.mStatus.Disable()
	t.mDLL = systray.AddMenuItem("hid.dll: verificando", "Estado do hid.dll")
	t.mDLL.Disable()
	systray.AddSeparator()

	t.mSteam = systray.AddMenuItem("Iniciar Steam", "Iniciar ou fechar o Steam")
	t.mRepair = systray.AddMenuItem("Reparar hid.dll", "Recriar o hid.dll na pasta do Steam")
	t.mOpenUI = systray.AddMenuItem("Abrir interface", "Abrir a interface web no navegador")
	systray.AddSeparator()
	t.mQuit = systray.AddMenuItem("Sair", "Fechar o GameLoader")

	t.mSteam.Click(func() {
		t.mu.RLock()
		running := t.status.SteamRunning
		t.mu.RUnlock()
		if t.config.OnToggleSteam != nil {
			t.config.OnToggleSteam(running)
		}
		t.Refresh()
	})
	t.mRepair.Click(func() {
		if t.config.OnRepairDLL != nil {
			t.config.OnRepairDLL()
		}
		t.Refresh()
	})
	t.mOpenUI.Click(func() {
		if t.config.OnOpenWebUI != nil {
			t.config.OnOpenWebUI()
		}
	})
	t.mQuit.Click(func() {
		if t.config.OnQuit != nil {
			t.config.OnQuit()
		}
		t.Quit()
	})
	// Double click opens the UI on platforms that report it.
	systray.SetOnDClick(func(systray.IMenu) {
		if t.config.OnOpenWebUI != nil {
			t.config.OnOpenWebUI()
		}
	})

	close(t.ready)
	t.Refresh()
}

func (t *Tray) onExit() {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()
}

func (t *Tray) updateMenu(s Status) {
	t.mStatus.SetTitle(statusLine(s))
	t.mDLL.SetTitle(dllLine(s))

	if s.SteamRunning {
		t.mSteam.SetTitle("Fechar Steam")
	} else {
		t.mSteam.SetTitle("Iniciar Steam")
	}
	if s.SteamFound {
		t.mSteam.Enable()
		t.mRepair.Enable()
	} else {
		t.mSteam.Disable()
		t.mRepair.Disable()
	}
}

func iconOf(s Status) []byte {
	switch {
	case !s.SteamFound:
		return IconError()
	case !s.DLLReady:
		return IconWarning()
	default:
		return IconReady()
	}
}

func statusLine(s Status) string {
	switch {
	case !s.SteamFound:
		return "Steam não encontrado"
	case s.SteamRunning:
		return "Steam em execução"
	default:
		return "Steam fechado"
	}
}

func dllLine(s Status) string {
	if s.DLLReady {
		return "hid.dll: ok"
	}
	return "hid.dll: ausente"
}

func tooltip(s Status) string {
	tip := fmt.Sprintf("%s - %s", appTitle, statusLine(s))
	if s.Username != "" {
		tip += " (" + s.Username + ")"
	}
	if s.Address != "" {
		tip += "\n" + s.Address
	}
	return tip
}
