package download

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/Guliveer/steam-gameloader-go/internal/cache"
	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/events"
	"github.com/Guliveer/steam-gameloader-go/internal/history"
	"github.com/Guliveer/steam-gameloader-go/internal/httpclient"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
	"github.com/Guliveer/steam-gameloader-go/internal/placement"
)

// Cache namespaces.
const (
	DownloadCacheNamespace = "download_cache"
	APICheckNamespace      = "api_check_cache"
	statusNamespace        = "download_system_status"
	statusKey              = "status"
)

// ErrInvalidAppID is returned for AppIDs that are not purely numeric.
var ErrInvalidAppID = errors.New("invalid appid")

// CacheEntry is the download cache record of an AppID.
type CacheEntry struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	AppID     string    `json:"appid"`
}

// Placer places a downloaded file or directory into Steam.
type Placer interface {
	ProcessPath(ctx context.Context, path, expectedAppID string) (*placement.Result, error)
}

// Deps are the collaborators of a Downloader.
type Deps struct {
	FS           afero.Fs
	HTTP         httpclient.Fetcher
	Git          GitRunner
	GitEnabled   bool
	Mirrors      []constants.Mirror
	Repositories []string
	LuaURLs      []string
	ManifestURLs []string
	Cache        cache.Store
	DownloadTTL  time.Duration
	APICheckTTL  time.Duration
	Budget       time.Duration
	Placer       Placer
	History      history.Recorder
	Events       events.Publisher
	Log          *logger.Logger
}

// Downloader drives the strategy cascade.
type Downloader struct {
	fs         afero.Fs
	strategies []Strategy
	api        *APIStrategy
	git        GitRunner
	gitEnabled bool
	repos      []string
	checks     *cache.TTL[[]string]
	last       *cache.TTL[CacheEntry]
	status     *cache.TTL[SystemStatus]
	budget     time.Duration
	placer     Placer
	history    history.Recorder
	events     events.Publisher
	log        *logger.Logger
}

// New builds a Downloader with the standard cascade: mirrors, raw files,
// then (when git is enabled) branch clone and full clone.
func New(d Deps) *Downloader {
	if d.Budget <= 0 {
		d.Budget = constants.DefaultDownloadBudget
	}
	if d.DownloadTTL <= 0 {
		d.DownloadTTL = constants.DownloadCacheTTL
	}
	if d.APICheckTTL <= 0 {
		d.APICheckTTL = constants.APICheckCacheTTL
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Git == nil {
		d.Git = ExecGit{}
	}

	dl := &Downloader{
		fs:         d.FS,
		git:        d.Git,
		gitEnabled: d.GitEnabled,
		repos:      d.Repositories,
		checks:     cache.NewTTL[[]string](d.Cache, APICheckNamespace, d.APICheckTTL),
		last:       cache.NewTTL[CacheEntry](d.Cache, DownloadCacheNamespace, d.DownloadTTL),
		status:     cache.NewTTL[SystemStatus](d.Cache, statusNamespace, constants.SystemStatusTTL),
		budget:     d.Budget,
		placer:     d.Placer,
		history:    d.History,
		events:     d.Events,
		log:        d.Log,
	}

	dl.api = NewAPIStrategy(d.FS, d.HTTP, d.Mirrors, dl.checks, dl.last, d.Log)
	dl.strategies = []Strategy{
		dl.api,
		NewIndividualStrategy(d.FS, d.HTTP, d.LuaURLs, d.ManifestURLs, d.Log),
	}
	if d.GitEnabled {
		dl.strategies = append(dl.strategies,
			NewGitBranchStrategy(d.FS, d.Git, d.Repositories, d.Log),
			NewGitCloneStrategy(d.FS, d.Git, d.Repositories, d.Log),
		)
	}
	return dl
}

// Strategies returns the cascade in order.
func (d *Downloader) Strategies() []Strategy { return d.strategies }

// SetStrategies replaces the cascade.
func (d *Downloader) SetStrategies(s ...Strategy) { d.strategies = s }

// Budget is the shared deadline of one run.
func (d *Downloader) Budget() time.Duration { return d.budget }

// Result is the outcome of one download run.
type Result struct {
	Success    bool              `json:"success"`
	AppID      string            `json:"appid"`
	Source     string            `json:"source"`
	Available  []string          `json:"apis_disponiveis"`
	Processing *placement.Result `json:"processing_result,omitempty"`
	Message    string            `json:"message,omitempty"`
	Error      string            `json:"error,omitempty"`
	Stages     []StageReport     `json:"stages"`
	DurationMS int64             `json:"duration_ms"`

	started time.Time
}

// Download runs the cascade for appid and places the first payload found.
func (d *Downloader) Download(ctx context.Context, appid string) (*Result, error) {
	appid = strings.TrimSpace(appid)
	if !model.IsAppID(appid) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAppID, appid)
	}

	result := &Result{AppID: appid, Available: []string{}, Stages: []StageReport{}, started: time.Now()}

	budgetCtx, cancel := context.WithTimeout(ctx, d.budget)
	defer cancel()

	workdir, err := afero.TempDir(d.fs, "", "gameloader_"+appid+"_")
	if err != nil {
		return d.fail(ctx, result, constants.SourceError, fmt.Sprintf("creating work dir: %v", err)), nil
	}
	defer d.fs.RemoveAll(workdir)

	d.log.Info("Starting download", "appid", appid, "stages", len(d.strategies), "budget", d.budget)
	d.events.Publish(events.DownloadStarted, appid, map[string]any{"budget_ms": d.budget.Milliseconds()})

	req := Request{
		AppID:   appid,
		WorkDir: workdir,
		Progress: func(source string, read, total int64) {
			d.events.Publish(events.DownloadProgress, appid, map[string]any{"source": source, "read": read, "total": total})
		},
	}

	var attempt *Attempt
	for i, s := range d.strategies {
		if budgetCtx.Err() != nil {
			for _, rest := range d.strategies[i:] {
				result.Stages = append(result.Stages, StageReport{Stage: rest.Name(), Outcome: OutcomeSkipped, Error: "download budget exhausted"})
			}
			break
		}

		report, a := d.runStage(budgetCtx, s, req)
		result.Stages = append(result.Stages, report)
		if a != nil && len(a.Available) > 0 && len(result.Available) == 0 {
			result.Available = a.Available
		}
		if report.Outcome == OutcomeSuccess {
			attempt = a
			break
		}
	}

	if attempt == nil {
		msg := "download failed from every source"
		if len(result.Available) > 0 {
			msg += ". Mirrors checked: " + strings.Join(result.Available, ", ")
		} else {
			msg += ". No mirror has content for this AppID."
		}
		return d.fail(ctx, result, constants.SourceNone, msg), nil
	}

	result.Source = attempt.Source
	if len(result.Available) == 0 {
		result.Available = attempt.Available
	}

	processing, err := d.placer.ProcessPath(ctx, attempt.Path, appid)
	if err != nil {
		return d.fail(ctx, result, constants.SourceError, fmt.Sprintf("processing download: %v", err)), nil
	}
	result.Processing = processing
	if !processing.Success {
		reason := processing.Error
		if reason == "" {
			reason = "no files were placed"
		}
		return d.fail(ctx, result, attempt.Source, fmt.Sprintf("downloaded via %s but placement failed: %s", attempt.Source, reason)), nil
	}

	result.Success = true
	result.Message = fmt.Sprintf("Download complete via %s - %d files processed", attempt.Source, processing.FilesProcessed)

	if err := d.last.Set(ctx, appid, CacheEntry{Source: attempt.Source, Timestamp: time.Now(), AppID: appid}); err != nil {
		d.log.Warn("Failed to save download cache", "appid", appid, "error", err)
	}
	d.finish(ctx, result)
	d.log.Event(ctx, model.EventDownloadSuccess, "Download complete", "appid", appid, "source", attempt.Source, "files", len(processing.Placed))
	return result, nil
}

func (d *Downloader) runStage(ctx context.Context, s Strategy, req Request) (StageReport, *Attempt) {
	d.log.Info("Stage started", "stage", s.Name(), "appid", req.AppID)
	d.events.Publish(events.DownloadStage, req.AppID, map[string]any{"stage": s.Name(), "state": "started"})

	start := time.Now()
	a, err := s.Attempt(ctx, req)
	if err == nil && (a == nil || a.Path == "") {
		err = fmt.Errorf("%w: empty attempt", ErrNoContent)
	}

	report := StageReport{Stage: s.Name(), Outcome: outcomeOf(ctx, err), Duration: time.Since(start)}
	report.DurationMS = report.Duration.Milliseconds()
	if err != nil {
		report.Error = err.Error()
	}

	switch report.Outcome {
	case OutcomeSuccess:
		d.log.Info("Stage finished", "stage", s.Name(), "appid", req.AppID, "outcome", report.Outcome, "source", a.Source, "duration", report.Duration)
	case OutcomeNoContent:
		d.log.Info("Stage finished", "stage", s.Name(), "appid", req.AppID, "outcome", report.Outcome, "duration", report.Duration)
	default:
		d.log.Warn("Stage finished", "stage", s.Name(), "appid", req.AppID, "outcome", report.Outcome, "duration", report.Duration, "error", err)
	}
	d.events.Publish(events.DownloadStage, req.AppID, report)
	return report, a
}

func (d *Downloader) fail(ctx context.Context, result *Result, source, msg string) *Result {
	result.Success = false
	result.Source = source
	result.Error = msg
	d.finish(ctx, result)
	d.log.Event(ctx, model.EventDownloadFailed, "Download failed", "appid", result.AppID, "source", source, "error", msg)
	return result
}

// finish stamps the duration, records the result and publishes a copy of
// it. Nothing writes to result after this.
func (d *Downloader) finish(ctx context.Context, result *Result) {
	result.DurationMS = time.Since(result.started).Milliseconds()
	d.record(ctx, result)
	d.events.Publish(events.DownloadFinished, result.AppID, *result)
}

func (d *Downloader) record(ctx context.Context, result *Result) {
	if d.history == nil {
		return
	}
	details := result.Message
	if !result.Success {
		details = result.Error
	}
	err := d.history.Record(context.WithoutCancel(ctx), history.Entry{
		AppID:   result.AppID,
		Success: result.Success,
		Source:  result.Source,
		Details: details,
	})
	if err != nil {
		d.log.Warn("Failed to record download history", "appid", result.AppID, "error", err)
	}
}
