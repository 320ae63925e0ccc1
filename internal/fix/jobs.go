package fix

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Guliveer/steam-gameloader-go/internal/archive"
	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/events"
	"github.com/Guliveer/steam-gameloader-go/internal/httpclient"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
	"github.com/Guliveer/steam-gameloader-go/internal/utils"
)

// ErrJobRunning is returned when a job for the AppID is still active.
var ErrJobRunning = errors.New("a fix job is already running for this appid")

// Cancel errors.
var (
	ErrNoActiveJob   = errors.New("no active fix job for this appid")
	ErrCancelTooLate = errors.New("fix is already being extracted")
)

// Job states.
const (
	StatusQueued      = "queued"
	StatusDownloading = "downloading"
	StatusExtracting  = "extracting"
	StatusReadingLog  = "reading_log"
	StatusRemoving    = "removing"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusCancelled   = "cancelled"
)

// Job kinds.
const (
	KindApply  = "apply"
	KindRemove = "remove"
)

// JobState is a snapshot of an apply or remove job.
type JobState struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	AppID          string    `json:"appid"`
	Status         string    `json:"status"`
	FixType        string    `json:"fix_type,omitempty"`
	GameName       string    `json:"game_name,omitempty"`
	BytesRead      int64     `json:"bytesRead"`
	TotalBytes     int64     `json:"totalBytes"`
	Progress       int       `json:"progress"`
	FilesExtracted int       `json:"files_extracted,omitempty"`
	FilesRemoved   int       `json:"files_removed,omitempty"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Active reports whether the job has not reached a final state.
func (s JobState) Active() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return false
	}
	return true
}

type job struct {
	state  JobState
	cancel context.CancelFunc
}

// ApplyRequest describes a fix to download and extract.
type ApplyRequest struct {
	AppID       string
	URL         string
	InstallPath string
	FixType     string
	GameName    string
}

// Jobs runs fix downloads and removals in the background, one per AppID.
type Jobs struct {
	fs      afero.Fs
	http    httpclient.Fetcher
	events  events.Publisher
	log     *logger.Logger
	timeout time.Duration

	mu      sync.Mutex
	applies map[string]*job
	removes map[string]*job
	wg      sync.WaitGroup
}

// NewJobs creates an empty job table.
func NewJobs(afs afero.Fs, fetcher httpclient.Fetcher, pub events.Publisher, log *logger.Logger) *Jobs {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Jobs{
		fs:      afs,
		http:    fetcher,
		events:  pub,
		log:     log,
		timeout: constants.FixDownloadTimeout,
		applies: make(map[string]*job),
		removes: make(map[string]*job),
	}
}

// update applies fn to an active job and publishes the result. Jobs in a
// final state are left untouched.
func (j *Jobs) update(jb *job, fn func(*JobState)) JobState {
	j.mu.Lock()
	if !jb.state.Active() {
		snapshot := jb.state
		j.mu.Unlock()
		return snapshot
	}
	fn(&jb.state)
	if jb.state.TotalBytes > 0 {
		jb.state.Progress = utils.Percentage(int(jb.state.BytesRead), int(jb.state.TotalBytes))
	}
	jb.state.UpdatedAt = time.Now()
	snapshot := jb.state
	j.mu.Unlock()

	j.events.Publish(eventType(snapshot.Kind), snapshot.AppID, snapshot)
	return snapshot
}

// start registers a queued job. The job context outlives ctx's cancellation.
func (j *Jobs) start(ctx context.Context, table map[string]*job, kind, appid string) (context.Context, context.CancelFunc, *job, error) {
	j.mu.Lock()
	if cur, ok := table[appid]; ok && cur.state.Active() {
		j.mu.Unlock()
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrJobRunning, appid)
	}
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.timeout)
	now := time.Now()
	jb := &job{
		state:  JobState{ID: uuid.NewString(), Kind: kind, AppID: appid, Status: StatusQueued, StartedAt: now, UpdatedAt: now},
		cancel: cancel,
	}
	table[appid] = jb
	state := jb.state
	j.mu.Unlock()

	j.events.Publish(eventType(kind), appid, state)
	return jobCtx, cancel, jb, nil
}

func eventType(kind string) string {
	if kind == KindRemove {
		return events.FixRemove
	}
	return events.FixApply
}

// Apply queues a download and extraction of req.URL into req.InstallPath.
func (j *Jobs) Apply(ctx context.Context, req ApplyRequest) (JobState, error) {
	if req.URL == "" || req.InstallPath == "" {
		return JobState{}, fmt.Errorf("fix url and install path are required")
	}
	if ok, _ := afero.DirExists(j.fs, req.InstallPath); !ok {
		return JobState{}, fmt.Errorf("install directory not found: %s", req.InstallPath)
	}

	jobCtx, cancel, jb, err := j.start(ctx, j.applies, KindApply, req.AppID)
	if err != nil {
		return JobState{}, err
	}
	state := j.update(jb, func(s *JobState) {
		s.FixType = req.FixType
		s.GameName = req.GameName
	})

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer cancel()
		j.runApply(jobCtx, jb, req)
	}()
	return state, nil
}

func (j *Jobs) runApply(ctx context.Context, jb *job, req ApplyRequest) {
	tmp, err := afero.TempFile(j.fs, "", fmt.Sprintf("fix_%s_*.zip", req.AppID))
	if err != nil {
		j.failApply(ctx, jb, req, err)
		return
	}
	tmpPath := tmp.Name()
	defer j.fs.Remove(tmpPath)

	j.update(jb, func(s *JobState) { s.Status = StatusDownloading })
	_, err = j.http.Stream(ctx, req.URL, tmp, 0, func(read, total int64) {
		j.update(jb, func(s *JobState) {
			s.BytesRead = read
			if total > 0 {
				s.TotalBytes = total
			}
		})
	})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		j.failApply(ctx, jb, req, err)
		return
	}

	if !j.beginExtract(jb) {
		return
	}
	files, err := archive.ExtractZip(j.fs, tmpPath, req.InstallPath)
	if err != nil {
		j.failApply(ctx, jb, req, err)
		return
	}

	if err := WriteLog(j.fs, req.InstallPath, req.AppID, LogInfo{GameName: req.GameName, FixType: req.FixType, URL: req.URL, Files: files}); err != nil {
		j.log.Warn("Failed to write fix log", "appid", req.AppID, "error", err)
	}

	j.update(jb, func(s *JobState) {
		s.Status = StatusCompleted
		s.Success = true
		s.FilesExtracted = len(files)
	})
	j.log.Event(ctx, model.EventFixApplied, "Fix applied", "appid", req.AppID, "game", req.GameName, "files", len(files))
}

func (j *Jobs) failApply(ctx context.Context, jb *job, req ApplyRequest, err error) {
	status := StatusFailed
	if errors.Is(err, context.Canceled) {
		status = StatusCancelled
	}
	j.update(jb, func(s *JobState) {
		s.Status = status
		s.Success = false
		s.Error = err.Error()
	})
	if status == StatusCancelled {
		j.log.Info("Fix cancelled", "appid", req.AppID)
		return
	}
	j.log.Event(context.WithoutCancel(ctx), model.EventFixFailed, "Fix failed", "appid", req.AppID, "error", err)
}

// beginExtract moves jb to extracting unless it was cancelled first. From
// then on Cancel refuses, since extraction cannot be interrupted.
func (j *Jobs) beginExtract(jb *job) bool {
	j.mu.Lock()
	if !jb.state.Active() {
		j.mu.Unlock()
		return false
	}
	jb.state.Status = StatusExtracting
	jb.state.UpdatedAt = time.Now()
	snapshot := jb.state
	j.mu.Unlock()

	j.events.Publish(eventType(snapshot.Kind), snapshot.AppID, snapshot)
	return true
}

// Cancel stops an active apply job that has not started extracting.
func (j *Jobs) Cancel(appid string) error {
	j.mu.Lock()
	jb, ok := j.applies[appid]
	switch {
	case !ok || !jb.state.Active():
		j.mu.Unlock()
		return ErrNoActiveJob
	case jb.state.Status == StatusExtracting:
		j.mu.Unlock()
		return ErrCancelTooLate
	}
	jb.cancel()
	jb.state.Status = StatusCancelled
	jb.state.Error = "cancelled by user"
	jb.state.UpdatedAt = time.Now()
	snapshot := jb.state
	j.mu.Unlock()

	j.events.Publish(eventType(snapshot.Kind), snapshot.AppID, snapshot)
	return nil
}

// Remove queues the removal of the files listed in the fix log of appid.
func (j *Jobs) Remove(ctx context.Context, appid, installPath string) (JobState, error) {
	if installPath == "" {
		return JobState{}, fmt.Errorf("install path is required")
	}
	if ok, _ := afero.DirExists(j.fs, installPath); !ok {
		return JobState{}, fmt.Errorf("install directory not found: %s", installPath)
	}

	jobCtx, cancel, jb, err := j.start(ctx, j.removes, KindRemove, appid)
	if err != nil {
		return JobState{}, err
	}
	state, _ := j.status(j.removes, appid)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer cancel()
		j.runRemove(jobCtx, jb, appid, installPath)
	}()
	return state, nil
}

func (j *Jobs) runRemove(ctx context.Context, jb *job, appid, installPath string) {
	fail := func(err error) {
		j.update(jb, func(s *JobState) {
			s.Status = StatusFailed
			s.Error = err.Error()
		})
		j.log.Warn("Fix removal failed", "appid", appid, "error", err)
	}

	j.update(jb, func(s *JobState) { s.Status = StatusReadingLog })
	files, err := ReadLogFiles(j.fs, installPath, appid)
	if err != nil {
		fail(fmt.Errorf("reading fix log: %w", err))
		return
	}

	j.update(jb, func(s *JobState) { s.Status = StatusRemoving })
	base := filepath.Clean(installPath)
	removed := 0
	for _, rel := range files {
		if ctx.Err() != nil {
			fail(ctx.Err())
			return
		}
		full := filepath.Join(base, filepath.FromSlash(rel))
		if r, err := filepath.Rel(base, full); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			j.log.Warn("Skipping fix entry outside install dir", "appid", appid, "path", rel)
			continue
		}
		if ok, _ := afero.Exists(j.fs, full); !ok {
			continue
		}
		if err := j.fs.Remove(full); err != nil {
			j.log.Warn("Failed to remove fix file", "path", full, "error", err)
			continue
		}
		removed++
	}

	if err := j.fs.Remove(LogPath(installPath, appid)); err != nil {
		j.log.Warn("Failed to remove fix log", "appid", appid, "error", err)
	}

	j.update(jb, func(s *JobState) {
		s.Status = StatusCompleted
		s.Success = true
		s.FilesRemoved = removed
	})
	j.log.Event(ctx, model.EventFixRemoved, "Fix removed", "appid", appid, "files", removed)
}

func (j *Jobs) status(table map[string]*job, appid string) (JobState, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	jb, ok := table[appid]
	if !ok {
		return JobState{}, false
	}
	return jb.state, true
}

// ApplyStatus returns the latest apply job of appid.
func (j *Jobs) ApplyStatus(appid string) (JobState, bool) { return j.status(j.applies, appid) }

// RemoveStatus returns the latest remove job of appid.
func (j *Jobs) RemoveStatus(appid string) (JobState, bool) { return j.status(j.removes, appid) }

// ActiveCounts returns the number of running apply and remove jobs.
func (j *Jobs) ActiveCounts() (applies, removes int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, jb := range j.applies {
		if jb.state.Active() {
			applies++
		}
	}
	for _, jb := range j.removes {
		if jb.state.Active() {
			removes++
		}
	}
	return applies, removes
}

// Forget drops the finished jobs from the table.
func (j *Jobs) Forget() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, table := range []map[string]*job{j.applies, j.removes} {
		for id, jb := range table {
			if !jb.state.Active() {
				delete(table, id)
			}
		}
	}
}

// Wait blocks until every background job has returned.
func (j *Jobs) Wait() {
	j.wg.Wait()
}
