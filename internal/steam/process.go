package steam

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
)

// Runner executes external commands.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	Start(name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func (ExecRunner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

type command struct {
	name string
	args []string
}

// processCommands are the per-OS commands used to inspect and control Steam.
type processCommands struct {
	running []command
	match   string
	kill    []command
	launch  func(root string) command
}

func commandsFor(goos string) processCommands {
	switch goos {
	case "windows":
		return processCommands{
			running: []command{{"tasklist", []string{"/FI", "IMAGENAME eq steam.exe", "/NH"}}},
			match:   "steam.exe",
			kill: []command{
				{"taskkill", []string{"/F", "/IM", "steam.exe"}},
				{"taskkill", []string{"/F", "/IM", "steamwebhelper.exe"}},
				{"taskkill", []string{"/F", "/IM", "steamservice.exe"}},
			},
			launch: func(root string) command {
				return command{filepath.Join(root, "steam.exe"), nil}
			},
		}
	case "darwin":
		return processCommands{
			running: []command{{"pgrep", []string{"-x", "steam_osx"}}},
			kill:    []command{{"pkill", []string{"-9", "-x", "steam_osx"}}},
			launch: func(string) command {
				return command{"open", []string{"-a", "Steam"}}
			},
		}
	default:
		return processCommands{
			running: []command{{"pgrep", []string{"-x", "steam"}}},
			kill: []command{
				{"pkill", []string{"-9", "-x", "steam"}},
				{"pkill", []string{"-9", "-f", "steamwebhelper"}},
			},
			launch: func(string) command {
				return command{"steam", nil}
			},
		}
	}
}

// Controller inspects and controls the Steam client process.
type Controller struct {
	runner       Runner
	cmds         processCommands
	timeout      time.Duration
	pollInterval time.Duration
	log          *logger.Logger
}

// NewController creates a Controller for the current OS.
func NewController(runner Runner, shutdownTimeout time.Duration, log *logger.Logger) *Controller {
	return newController(runner, runtime.GOOS, shutdownTimeout, log)
}

func newController(runner Runner, goos string, shutdownTimeout time.Duration, log *logger.Logger) *Controller {
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = constants.DefaultSteamShutdownTimeout
	}
	return &Controller{
		runner:       runner,
		cmds:         commandsFor(goos),
		timeout:      shutdownTimeout,
		pollInterval: constants.SteamPollInterval,
		log:          log,
	}
}

// IsRunning checks if Steam is currently running.
func (c *Controller) IsRunning(ctx context.Context) bool {
	for _, cmd := range c.cmds.running {
		output, err := c.runner.Output(ctx, cmd.name, cmd.args...)
		if err != nil {
			continue
		}
		out := strings.TrimSpace(string(output))
		if c.cmds.match != "" {
			if strings.Contains(strings.ToLower(out), c.cmds.match) {
				return true
			}
			continue
		}
		if out != "" {
			return true
		}
	}
	return false
}

// Stop force-kills every Steam process and waits until none remain.
func (c *Controller) Stop(ctx context.Context) error {
	if !c.IsRunning(ctx) {
		return nil
	}

	c.log.Info("Stopping Steam")
	for _, cmd := range c.cmds.kill {
		// Exit codes are ignored: killing a process that is not running fails.
		_, _ = c.runner.Output(ctx, cmd.name, cmd.args...)
	}
	return c.WaitForShutdown(ctx, c.timeout)
}

// WaitForShutdown polls until Steam is gone or timeout elapses.
func (c *Controller) WaitForShutdown(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if !c.IsRunning(ctx) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("steam still running after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// Launch starts the Steam client from root. It is a no-op when Steam already runs.
func (c *Controller) Launch(ctx context.Context, root string) error {
	if c.IsRunning(ctx) {
		c.log.Debug("Steam already running")
		return nil
	}

	cmd := c.cmds.launch(root)
	c.log.Info("Starting Steam", "path", cmd.name)
	if err := c.runner.Start(cmd.name, cmd.args...); err != nil {
		return fmt.Errorf("starting steam: %w", err)
	}
	return nil
}

// Restart stops Steam, waits for it to exit, and launches it again.
func (c *Controller) Restart(ctx context.Context, root string) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}
	return c.Launch(ctx, root)
}
