package fix

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/steam"
)

var (
	ErrNoFixAvailable = errors.New("no fix available")
	ErrNotInstalled   = errors.New("game is not installed")
	ErrNoFixApplied   = errors.New("no fix applied to this game")
)

// Fix types accepted by Apply.
const (
	TypeAuto    = "auto"
	TypeGeneric = "generic"
	TypeOnline  = "online"
	TypeLocal   = "local"
)

// AppsFunc lists the apps installed in the Steam libraries.
type AppsFunc func(ctx context.Context) ([]steam.InstalledApp, error)

// Report is a CheckResult enriched with the install state of the game.
type Report struct {
	*CheckResult
	Installed     bool   `json:"installed"`
	InstallPath   string `json:"install_path,omitempty"`
	HasFixApplied bool   `json:"has_fix_applied"`
}

// Service is the fix facade used by the HTTP handlers.
type Service struct {
	fs      afero.Fs
	checker *Checker
	jobs    *Jobs
	apps    AppsFunc
	log     *logger.Logger
}

// NewService wires a Checker and a job table to the installed apps.
func NewService(afs afero.Fs, checker *Checker, jobs *Jobs, apps AppsFunc, log *logger.Logger) *Service {
	return &Service{fs: afs, checker: checker, jobs: jobs, apps: apps, log: log}
}

// Jobs returns the job table.
func (s *Service) Jobs() *Jobs { return s.jobs }

// Catalog returns the local catalog.
func (s *Service) Catalog() *Catalog { return s.checker.Catalog() }

func (s *Service) installed(ctx context.Context, appid string) (*steam.InstalledApp, error) {
	apps, err := s.apps(ctx)
	if err != nil {
		return nil, err
	}
	for i := range apps {
		if apps[i].AppID == appid {
			return &apps[i], nil
		}
	}
	return nil, nil
}

// Check lists the fixes for appid and where the game is installed.
func (s *Service) Check(ctx context.Context, appid string) (*Report, error) {
	r := &Report{CheckResult: s.checker.Check(ctx, appid)}
	app, err := s.installed(ctx, appid)
	if err != nil {
		s.log.Debug("Installed app lookup failed", "appid", appid, "error", err)
	}
	if app != nil && app.InstallPath != "" {
		r.Installed = true
		r.InstallPath = app.InstallPath
		r.HasFixApplied = Installed(s.fs, app.InstallPath, appid)
	}
	return r, nil
}

// selectFix picks the URL for fixType. Auto prefers generic, then online,
// then local; an unavailable explicit type falls back to local.
func selectFix(r *CheckResult, fixType string) (url, label string, ok bool) {
	switch fixType {
	case TypeAuto, "":
		switch {
		case r.GenericFix.Available:
			return r.GenericFix.URL, "Generic (github)", true
		case r.OnlineFix.Available:
			return r.OnlineFix.URL, "Online (github)", true
		case r.LocalFix.Available:
			return r.LocalFix.URL, "Local (json)", true
		}
	case TypeGeneric:
		if r.GenericFix.Available {
			return r.GenericFix.URL, "Generic (github)", true
		}
	case TypeOnline:
		if r.OnlineFix.Available {
			return r.OnlineFix.URL, "Online (github)", true
		}
	case TypeLocal, "json":
		if r.LocalFix.Available {
			return r.LocalFix.URL, "Local (json)", true
		}
	}
	if r.LocalFix.Available {
		return r.LocalFix.URL, "Local (Fallback) (json)", true
	}
	return "", "", false
}

// Apply checks the fixes of an installed game and starts the download of
// the one selected by fixType.
func (s *Service) Apply(ctx context.Context, appid, fixType string) (JobState, error) {
	r, err := s.Check(ctx, appid)
	if err != nil {
		return JobState{}, err
	}
	if !r.Installed {
		return JobState{}, fmt.Errorf("%w: %s", ErrNotInstalled, appid)
	}

	fixType = strings.ToLower(strings.TrimSpace(fixType))
	url, label, ok := selectFix(r.CheckResult, fixType)
	if !ok {
		return JobState{}, fmt.Errorf("%w: %s", ErrNoFixAvailable, fixType)
	}

	s.log.Info("Applying fix", "appid", appid, "type", label, "game", r.GameName)
	return s.jobs.Apply(ctx, ApplyRequest{
		AppID:       appid,
		URL:         url,
		InstallPath: r.InstallPath,
		FixType:     label,
		GameName:    r.GameName,
	})
}

// Remove starts the removal of the fix applied to an installed game.
func (s *Service) Remove(ctx context.Context, appid string) (JobState, error) {
	app, err := s.installed(ctx, appid)
	if err != nil {
		return JobState{}, err
	}
	if app == nil || app.InstallPath == "" {
		return JobState{}, fmt.Errorf("%w: %s", ErrNotInstalled, appid)
	}
	if !Installed(s.fs, app.InstallPath, appid) {
		return JobState{}, fmt.Errorf("%w: %s", ErrNoFixApplied, appid)
	}
	return s.jobs.Remove(ctx, appid, app.InstallPath)
}

// SystemStatus summarizes the fix subsystem.
type SystemStatus struct {
	CatalogLoaded   bool `json:"local_fixes_loaded"`
	CatalogCount    int  `json:"local_fixes_count"`
	GamesCount      int  `json:"games_count"`
	ActiveDownloads int  `json:"active_downloads"`
	ActiveRemovals  int  `json:"active_unfix"`
	FixesApplied    int  `json:"fixes_applied"`
}

// SystemStatus counts catalog entries, installed games and running jobs.
func (s *Service) SystemStatus(ctx context.Context) SystemStatus {
	st := SystemStatus{CatalogLoaded: s.Catalog().Loaded(), CatalogCount: s.Catalog().Len()}
	st.ActiveDownloads, st.ActiveRemovals = s.jobs.ActiveCounts()
	if apps, err := s.apps(ctx); err == nil {
		st.GamesCount = len(apps)
		for _, a := range apps {
			if Installed(s.fs, a.InstallPath, a.AppID) {
				st.FixesApplied++
			}
		}
	}
	return st
}
