package placement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/Guliveer/steam-gameloader-go/internal/archive"
	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/luaplugin"
	"github.com/Guliveer/steam-gameloader-go/internal/steam"
)

var (
	ErrDestinationExists = errors.New("destination exists and overwrite is disabled")
	ErrAppIDMismatch     = errors.New("file appid does not match the requested appid")
	ErrEmptyFile         = errors.New("file is empty")
	ErrSystemFile        = errors.New("system file ignored")
	ErrNoPayload         = errors.New("no .lua or .manifest files found")
)

// Settings control how files are placed.
type Settings struct {
	MakeBackup        bool `json:"make_backup"`
	ExtractArchives   bool `json:"extract_archives"`
	OverwriteExisting bool `json:"overwrite_existing"`
	StrictAppID       bool `json:"strict_appid"`
}

// LayoutFunc resolves the Steam layout at placement time, so a changed
// Steam path is picked up without rebuilding the Placer.
type LayoutFunc func(ctx context.Context) (steam.Layout, error)

// PlacedFile describes one file copied into Steam.
type PlacedFile struct {
	Source      string            `json:"from"`
	Destination string            `json:"to"`
	FileName    string            `json:"filename"`
	Kind        Kind              `json:"destination_type"`
	Size        int64             `json:"size"`
	AppID       string            `json:"appid,omitempty"`
	Backup      string            `json:"backup,omitempty"`
	Mismatch    bool              `json:"appid_mismatch,omitempty"`
	Script      *luaplugin.Script `json:"script,omitempty"`
}

// FailedFile is a file that could not be placed.
type FailedFile struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Result aggregates a placement run.
type Result struct {
	Success        bool              `json:"success"`
	FilesProcessed int               `json:"files_processed"`
	Placed         []PlacedFile      `json:"moved_files"`
	Failed         []FailedFile      `json:"errors"`
	Skipped        []string          `json:"skipped"`
	Mismatches     []string          `json:"mismatches"`
	AppIDs         []string          `json:"app_ids"`
	Extracted      []string          `json:"extracted_files,omitempty"`
	SteamPath      string            `json:"steam_path"`
	TargetPaths    map[string]string `json:"target_paths"`
	StartedAt      time.Time         `json:"start_time"`
	FinishedAt     time.Time         `json:"end_time"`
	Error          string            `json:"error,omitempty"`
}

// SuccessRate is the share of processed files that were placed, e.g. "50.0%".
func (r *Result) SuccessRate() string {
	if r.FilesProcessed == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(len(r.Placed))/float64(r.FilesProcessed)*100)
}

func (r *Result) addAppID(id string) {
	if id == "" {
		return
	}
	for _, existing := range r.AppIDs {
		if existing == id {
			return
		}
	}
	r.AppIDs = append(r.AppIDs, id)
}

func (r *Result) merge(other *Result) {
	r.FilesProcessed += other.FilesProcessed
	r.Placed = append(r.Placed, other.Placed...)
	r.Failed = append(r.Failed, other.Failed...)
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Mismatches = append(r.Mismatches, other.Mismatches...)
	r.Extracted = append(r.Extracted, other.Extracted...)
	for _, id := range other.AppIDs {
		r.addAppID(id)
	}
}

// Placer copies payload files into depotcache and stplug-in.
type Placer struct {
	fs     afero.Fs
	layout LayoutFunc
	log    *logger.Logger

	mu       sync.RWMutex
	settings Settings
}

// NewPlacer creates a Placer.
func NewPlacer(fs afero.Fs, layout LayoutFunc, settings Settings, log *logger.Logger) *Placer {
	return &Placer{fs: fs, layout: layout, settings: settings, log: log}
}

// Settings returns the current settings.
func (p *Placer) Settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

// UpdateSettings replaces the settings used by subsequent placements.
func (p *Placer) UpdateSettings(s Settings) {
	p.mu.Lock()
	p.settings = s
	p.mu.Unlock()
}

func (p *Placer) newResult(layout steam.Layout) *Result {
	return &Result{
		Placed:     []PlacedFile{},
		Failed:     []FailedFile{},
		Skipped:    []string{},
		Mismatches: []string{},
		AppIDs:     []string{},
		SteamPath:  layout.Root,
		TargetPaths: map[string]string{
			string(KindDepotCache): layout.DepotCache(),
			string(KindPlugin):     layout.PluginDir(),
		},
		StartedAt: time.Now(),
	}
}

func (r *Result) finish() *Result {
	r.FinishedAt = time.Now()
	r.Success = len(r.Placed) > 0
	if !r.Success && r.Error == "" && len(r.Failed) > 0 {
		r.Error = r.Failed[0].Error
	}
	return r
}

func (p *Placer) validateSource(src string) (os.FileInfo, error) {
	if IsSystemFile(src) {
		return nil, ErrSystemFile
	}
	info, err := p.fs.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("source not found: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", src)
	}
	if info.Size() == 0 {
		return nil, ErrEmptyFile
	}
	f, err := p.fs.Open(src)
	if err != nil {
		return nil, fmt.Errorf("source not readable: %w", err)
	}
	f.Close()
	return info, nil
}

// PlaceFile copies src into its Steam destination. expectedAppID may be
// empty; when set, a file whose name carries another AppID is flagged and,
// with StrictAppID, rejected.
func (p *Placer) PlaceFile(ctx context.Context, src, expectedAppID string) (*PlacedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	layout, err := p.layout(ctx)
	if err != nil {
		return nil, err
	}
	return p.place(layout, src, expectedAppID, p.Settings())
}

func (p *Placer) place(layout steam.Layout, src, expectedAppID string, settings Settings) (*PlacedFile, error) {
	info, err := p.validateSource(src)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(src)
	kind, err := Classify(name)
	if err != nil {
		return nil, err
	}

	appid, _ := ExtractAppID(name)
	mismatch := expectedAppID != "" && appid != "" && appid != expectedAppID
	if mismatch {
		if settings.StrictAppID {
			return nil, fmt.Errorf("%w: %s carries %s, expected %s", ErrAppIDMismatch, name, appid, expectedAppID)
		}
		p.log.Warn("AppID mismatch", "file", name, "appid", appid, "expected", expectedAppID)
	}

	destDir := layout.DepotCache()
	if kind == KindPlugin {
		destDir = layout.PluginDir()
	}
	if err := steam.EnsureWritable(p.fs, destDir); err != nil {
		return nil, fmt.Errorf("destination %s not writable: %w", destDir, err)
	}

	placed := &PlacedFile{
		Source:      src,
		Destination: filepath.Join(destDir, name),
		FileName:    name,
		Kind:        kind,
		AppID:       appid,
		Mismatch:    mismatch,
	}

	if exists, _ := afero.Exists(p.fs, placed.Destination); exists {
		if !settings.OverwriteExisting {
			return nil, fmt.Errorf("%w: %s", ErrDestinationExists, placed.Destination)
		}
		if settings.MakeBackup {
			backup := placed.Destination + constants.BackupSuffix
			if err := copyFile(p.fs, placed.Destination, backup); err != nil {
				return nil, fmt.Errorf("backing up %s: %w", placed.Destination, err)
			}
			placed.Backup = backup
			p.log.Info("Backup created", "path", backup)
		}
		if err := p.fs.Remove(placed.Destination); err != nil {
			return nil, fmt.Errorf("removing existing %s: %w", placed.Destination, err)
		}
	}

	if err := copyFile(p.fs, src, placed.Destination); err != nil {
		return nil, err
	}

	final, err := p.fs.Stat(placed.Destination)
	if err != nil {
		return nil, fmt.Errorf("destination missing after copy: %w", err)
	}
	placed.Size = final.Size()
	if placed.Size != info.Size() {
		p.log.Warn("Size mismatch after copy", "file", name, "source", info.Size(), "destination", placed.Size)
	}

	if err := checkReadable(p.fs, placed.Destination); err != nil {
		return nil, err
	}

	if kind == KindPlugin {
		data, err := afero.ReadFile(p.fs, placed.Destination)
		if err == nil {
			placed.Script = luaplugin.Inspect(string(data))
		}
	}

	p.log.Info("File placed", "file", name, "stage", string(kind), "appid", appid, "size", placed.Size)
	return placed, nil
}

func checkReadable(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("destination unreadable: %w", err)
	}
	defer f.Close()

	header := make([]byte, constants.MinPayloadSize)
	n, err := f.Read(header)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("destination unreadable: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("destination corrupted: %w", ErrEmptyFile)
	}
	return nil
}

func copyFile(fs afero.Fs, src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	return out.Close()
}

// PlaceFiles places every file and aggregates the outcome.
func (p *Placer) PlaceFiles(ctx context.Context, files []string, expectedAppID string) (*Result, error) {
	layout, err := p.layout(ctx)
	if err != nil {
		return nil, err
	}
	result := p.newResult(layout)
	p.placeAll(ctx, layout, files, expectedAppID, result, false)
	return result.finish(), nil
}

func (p *Placer) placeAll(ctx context.Context, layout steam.Layout, files []string, expectedAppID string, result *Result, skipUnsupported bool) {
	settings := p.Settings()
	total := len(files)
	for i, file := range files {
		if ctx.Err() != nil {
			result.Failed = append(result.Failed, FailedFile{File: file, Error: ctx.Err().Error()})
			return
		}

		p.log.Debug("Processing file", "file", filepath.Base(file), "index", i+1, "total", total)

		if settings.ExtractArchives && strings.EqualFold(filepath.Ext(file), ".zip") && archive.IsZip(p.fs, file) {
			result.merge(p.processArchive(ctx, layout, file, expectedAppID))
			continue
		}

		if skipUnsupported {
			if _, err := Classify(file); err != nil || IsSystemFile(file) {
				result.Skipped = append(result.Skipped, file)
				continue
			}
		}

		result.FilesProcessed++
		placed, err := p.place(layout, file, expectedAppID, settings)
		if err != nil {
			p.log.Error("Failed to place file", "file", filepath.Base(file), "error", err)
			result.Failed = append(result.Failed, FailedFile{File: file, Error: err.Error()})
			continue
		}
		result.Placed = append(result.Placed, *placed)
		result.addAppID(placed.AppID)
		if placed.Mismatch {
			result.Mismatches = append(result.Mismatches, placed.FileName)
		}
	}
}

func (p *Placer) processArchive(ctx context.Context, layout steam.Layout, zipPath, expectedAppID string) *Result {
	result := p.newResult(layout)

	tmp, err := afero.TempDir(p.fs, "", "gameloader_extract_")
	if err != nil {
		result.Failed = append(result.Failed, FailedFile{File: zipPath, Error: err.Error()})
		return result
	}
	defer p.fs.RemoveAll(tmp)

	files, err := archive.ExtractZip(p.fs, zipPath, tmp)
	if err != nil {
		result.Failed = append(result.Failed, FailedFile{File: zipPath, Error: err.Error()})
		return result
	}
	result.Extracted = append(result.Extracted, files...)
	p.log.Info("Archive extracted", "file", filepath.Base(zipPath), "files", len(files))

	paths := make([]string, 0, len(files))
	for _, rel := range files {
		paths = append(paths, filepath.Join(tmp, filepath.FromSlash(rel)))
	}
	p.placeAll(ctx, layout, paths, expectedAppID, result, true)
	return result
}

// ProcessPath places a single file, every file under a directory, or the
// contents of a zip archive.
func (p *Placer) ProcessPath(ctx context.Context, path, expectedAppID string) (*Result, error) {
	layout, err := p.layout(ctx)
	if err != nil {
		return nil, err
	}
	result := p.newResult(layout)

	info, err := p.fs.Stat(path)
	if err != nil {
		result.Error = fmt.Sprintf("invalid path: %s", path)
		return result.finish(), nil
	}

	if !info.IsDir() {
		p.placeAll(ctx, layout, []string{path}, expectedAppID, result, false)
		return result.finish(), nil
	}

	var files []string
	err = afero.Walk(p.fs, path, func(walked string, fi fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if fi.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsSystemFile(fi.Name()) {
			files = append(files, walked)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", path, err)
	}
	if len(files) == 0 {
		result.Error = ErrNoPayload.Error()
		return result.finish(), nil
	}

	p.placeAll(ctx, layout, files, expectedAppID, result, true)
	if len(result.Placed) == 0 && len(result.Failed) == 0 {
		result.Error = ErrNoPayload.Error()
	}
	return result.finish(), nil
}

// UploadResult is a placement Result plus details of the uploaded file.
type UploadResult struct {
	*Result
	Upload UploadMetadata `json:"upload_metadata"`
}

// UploadMetadata describes an uploaded archive.
type UploadMetadata struct {
	FileName        string   `json:"zip_file"`
	ExtractedFiles  int      `json:"extracted_files"`
	ValidFilesFound int      `json:"valid_files_found"`
	DetectedAppIDs  []string `json:"detected_appids"`
}

// ProcessUpload stores an uploaded zip (or a single .lua/.manifest) in a
// temporary directory and places its contents.
func (p *Placer) ProcessUpload(ctx context.Context, filename string, r io.Reader, expectedAppID string) (*UploadResult, error) {
	filename = filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if filename == "" || filename == "." || filename == "/" {
		return nil, errors.New("missing file name")
	}

	tmp, err := afero.TempDir(p.fs, "", "gameloader_upload_")
	if err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	defer p.fs.RemoveAll(tmp)

	saved := filepath.Join(tmp, filename)
	out, err := p.fs.Create(saved)
	if err != nil {
		return nil, fmt.Errorf("saving upload: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return nil, fmt.Errorf("saving upload: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("saving upload: %w", err)
	}

	meta := UploadMetadata{FileName: filename, DetectedAppIDs: []string{}}

	if !strings.EqualFold(filepath.Ext(filename), ".zip") {
		if _, err := Classify(filename); err != nil {
			return nil, err
		}
		result, err := p.PlaceFiles(ctx, []string{saved}, expectedAppID)
		if err != nil {
			return nil, err
		}
		meta.ExtractedFiles, meta.ValidFilesFound = 1, 1
		meta.DetectedAppIDs = result.AppIDs
		return &UploadResult{Result: result, Upload: meta}, nil
	}

	if !archive.IsZip(p.fs, saved) {
		return nil, errors.New("uploaded file is not a valid zip")
	}

	extractDir := filepath.Join(tmp, "contents")
	files, err := archive.ExtractZip(p.fs, saved, extractDir)
	if err != nil {
		return nil, err
	}
	meta.ExtractedFiles = len(files)

	var valid []string
	for _, rel := range files {
		if _, err := Classify(rel); err == nil && !IsSystemFile(rel) {
			valid = append(valid, filepath.Join(extractDir, filepath.FromSlash(rel)))
			if id, ok := ExtractAppID(rel); ok {
				meta.DetectedAppIDs = appendUnique(meta.DetectedAppIDs, id)
			}
		}
	}
	meta.ValidFilesFound = len(valid)
	if len(valid) == 0 {
		return nil, ErrNoPayload
	}

	result, err := p.PlaceFiles(ctx, valid, expectedAppID)
	if err != nil {
		return nil, err
	}
	result.Extracted = files
	return &UploadResult{Result: result, Upload: meta}, nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
