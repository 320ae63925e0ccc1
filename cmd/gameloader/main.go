// Command gameloader is the entry point of the Steam GameLoader. It loads
// the configuration, wires the components, serves the local web interface
// and shows the tray icon until a signal or the tray asks it to quit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/Guliveer/steam-gameloader-go/internal/app"
	"github.com/Guliveer/steam-gameloader-go/internal/config"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/server"
	"github.com/Guliveer/steam-gameloader-go/internal/steam"
	"github.com/Guliveer/steam-gameloader-go/internal/tray"
)

const banner = `
+--------------------------------------------------+
|              Steam GameLoader (Go)               |
+--------------------------------------------------+
`

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Path to the YAML configuration file")
	addrFlag := flag.String("addr", "", "Listen address of the web interface (overrides server.addr)")
	logLevel := flag.String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR (overrides LOG_LEVEL env)")
	noColor := flag.Bool("no-color", false, "Disable colored output (overrides TTY detection)")
	noTray := flag.Bool("no-tray", false, "Do not show the system tray icon")
	noBrowser := flag.Bool("no-browser", false, "Do not open the web interface on startup")
	flag.Parse()

	// A missing .env is fine; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addrFlag != "" {
		cfg.Server.Addr = *addrFlag
	}

	level := slog.LevelInfo
	switch {
	case *logLevel != "":
		level = logger.ParseLevel(*logLevel)
	case os.Getenv("LOG_LEVEL") != "":
		level = logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	case cfg.Log.Level != "":
		level = logger.ParseLevel(cfg.Log.Level)
	}
	colored := !*noColor && term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""

	logCfg := logger.DefaultConfig()
	logCfg.Level = level
	logCfg.Colored = colored
	logCfg.LogDir = cfg.Log.Dir
	rootLog, err := logger.Setup(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(banner)
	rootLog.Info("Starting Steam GameLoader", "config", *configPath, "cache", cfg.Cache.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			rootLog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
		}
		cancel()

		time.AfterFunc(30*time.Second, func() {
			rootLog.Error("Graceful shutdown timed out, forcing exit")
			os.Exit(1)
		})
	}()

	a, err := app.New(ctx, cfg, rootLog)
	if err != nil {
		rootLog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	go func() {
		res := a.DLL.Initialize(ctx)
		if res.Success {
			rootLog.Info("hid.dll ready", "created", res.DLLCreated)
		} else {
			rootLog.Warn("hid.dll not ready", "steam_found", res.SteamFound, "errors", res.Errors)
		}
	}()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		rootLog.Error("Failed to listen", "addr", cfg.Server.Addr, "error", err)
		os.Exit(1)
	}
	url := "http://" + browserHost(ln.Addr())

	srv := server.New(a, cfg.Server.Addr)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ctx, ln); err != nil && !errors.Is(err, context.Canceled) {
			rootLog.Error("Web interface failed", "error", err)
			cancel()
		}
	}()
	rootLog.Info("Web interface started", "url", url)

	if cfg.ShouldOpenBrowser() && !*noBrowser {
		openBrowser(rootLog, url)
	}

	if cfg.TrayEnabled() && !*noTray {
		runTray(ctx, cancel, a, rootLog, url)
	} else {
		<-ctx.Done()
	}

	cancel()
	wg.Wait()
	if err := a.Close(); err != nil {
		rootLog.Warn("Shutdown finished with errors", "error", err)
	}
	rootLog.Info("Shutdown complete")
	_ = rootLog.Close()
}

// runTray blocks on the tray loop, which must own the main goroutine.
func runTray(ctx context.Context, cancel context.CancelFunc, a *app.App, log *logger.Logger, url string) {
	t := tray.New(tray.Config{
		OnOpenWebUI: func() { openBrowser(log, url) },
		OnToggleSteam: func(running bool) {
			action := app.ActionStart
			if running {
				action = app.ActionStop
			}
			if err := a.ControlSteam(ctx, action); err != nil {
				log.Warn("Steam control from tray failed", "action", action, "error", err)
			}
		},
		OnRepairDLL: func() {
			if err := a.DLL.Recreate(ctx, ""); err != nil {
				log.Warn("hid.dll repair from tray failed", "error", err)
			}
		},
		OnQuit:    cancel,
		GetStatus: func() tray.Status { return trayStatus(ctx, a, url) },
	})

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	go t.Watch(ctx)
	t.Run()
}

func trayStatus(ctx context.Context, a *app.App, url string) tray.Status {
	st := tray.Status{Address: url}
	root, err := a.Locator.Detect(ctx)
	if err != nil {
		return st
	}
	st.SteamFound = true
	st.SteamRunning = a.Controller.IsRunning(ctx)
	st.DLLReady = a.DLL.Simple(ctx).Ready
	if u, err := steam.CurrentUser(a.FS, steam.NewLayout(root)); err == nil {
		st.Username = u.PersonaName
	}
	return st
}

// browserHost turns a wildcard listen address into one a browser can open.
func browserHost(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok && tcp.IP.IsUnspecified() {
		return fmt.Sprintf("127.0.0.1:%d", tcp.Port)
	}
	return addr.String()
}

func openBrowser(log *logger.Logger, url string) {
	var name string
	var args []string
	switch runtime.GOOS {
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		name, args = "open", []string{url}
	default:
		name, args = "xdg-open", []string{url}
	}
	if err := (steam.ExecRunner{}).Start(name, args...); err != nil {
		log.Warn("Failed to open browser", "url", url, "error", err)
	}
}
