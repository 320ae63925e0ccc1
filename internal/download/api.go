package download

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/Guliveer/steam-gameloader-go/internal/archive"
	"github.com/Guliveer/steam-gameloader-go/internal/cache"
	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/httpclient"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
)

// APIStrategy downloads a ready-made archive from the first mirror that
// serves the AppID.
type APIStrategy struct {
	fs      afero.Fs
	http    httpclient.Fetcher
	mirrors []constants.Mirror
	checks  *cache.TTL[[]string]
	last    *cache.TTL[CacheEntry]
	log     *logger.Logger
}

// NewAPIStrategy creates the mirror stage. checks caches the names of the
// mirrors that answered a probe; last holds the previous successful source.
func NewAPIStrategy(fs afero.Fs, fetcher httpclient.Fetcher, mirrors []constants.Mirror, checks *cache.TTL[[]string], last *cache.TTL[CacheEntry], log *logger.Logger) *APIStrategy {
	return &APIStrategy{fs: fs, http: fetcher, mirrors: mirrors, checks: checks, last: last, log: log}
}

func (a *APIStrategy) Name() string { return "api" }

// Mirrors returns the configured mirrors.
func (a *APIStrategy) Mirrors() []constants.Mirror { return a.mirrors }

func mirrorURL(m constants.Mirror, appid string) string {
	return strings.ReplaceAll(m.URL, constants.AppIDPlaceholder, appid)
}

// probe HEADs every mirror concurrently and keeps those that answer 200
// with a Content-Length above the minimum payload size, in mirror order.
func (a *APIStrategy) probe(ctx context.Context, appid string) []constants.Mirror {
	ok := make([]bool, len(a.mirrors))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range a.mirrors {
		g.Go(func() error {
			resp, err := a.http.Head(gctx, mirrorURL(m, appid), constants.HeadTimeout)
			if err != nil {
				a.log.Debug("Mirror probe failed", "mirror", m.Name, "appid", appid, "error", err)
				return nil
			}
			if resp.StatusCode == http.StatusOK && resp.ContentLength > constants.MinPayloadSize {
				ok[i] = true
				return nil
			}
			a.log.Debug("Mirror has no content", "mirror", m.Name, "appid", appid, "status", resp.StatusCode, "size", resp.ContentLength)
			return nil
		})
	}
	_ = g.Wait()

	var available []constants.Mirror
	for i, m := range a.mirrors {
		if ok[i] {
			available = append(available, m)
		}
	}
	return available
}

// AvailableMirrors returns the mirrors serving appid, using the check cache.
func (a *APIStrategy) AvailableMirrors(ctx context.Context, appid string) []constants.Mirror {
	if names, ok := a.checks.Get(ctx, appid); ok && len(names) > 0 {
		var cached []constants.Mirror
		for _, m := range a.mirrors {
			for _, n := range names {
				if m.Name == n {
					cached = append(cached, m)
					break
				}
			}
		}
		if len(cached) > 0 {
			a.log.Debug("Using cached mirror check", "appid", appid, "mirrors", len(cached))
			return cached
		}
	}

	available := a.probe(ctx, appid)
	if len(available) > 0 {
		if err := a.checks.Set(ctx, appid, mirrorNames(available)); err != nil {
			a.log.Warn("Failed to cache mirror check", "appid", appid, "error", err)
		}
	}
	return available
}

func mirrorNames(mirrors []constants.Mirror) []string {
	names := make([]string, len(mirrors))
	for i, m := range mirrors {
		names[i] = m.Name
	}
	return names
}

// preferLast moves the previously successful mirror to the front.
func (a *APIStrategy) preferLast(ctx context.Context, appid string, mirrors []constants.Mirror) []constants.Mirror {
	entry, ok := a.last.Get(ctx, appid)
	if !ok {
		return mirrors
	}
	for i, m := range mirrors {
		if m.Name == entry.Source && i > 0 {
			ordered := make([]constants.Mirror, 0, len(mirrors))
			ordered = append(ordered, m)
			ordered = append(ordered, mirrors[:i]...)
			return append(ordered, mirrors[i+1:]...)
		}
	}
	return mirrors
}

func (a *APIStrategy) Attempt(ctx context.Context, req Request) (*Attempt, error) {
	available := a.AvailableMirrors(ctx, req.AppID)
	names := mirrorNames(available)
	if len(available) == 0 {
		return &Attempt{Available: names}, fmt.Errorf("%w: no mirror serves %s", ErrNoContent, req.AppID)
	}

	for _, m := range a.preferLast(ctx, req.AppID, available) {
		path, err := a.fetch(ctx, m, req)
		if err != nil {
			if ctx.Err() != nil {
				return &Attempt{Available: names}, ctx.Err()
			}
			a.log.Warn("Mirror download failed", "mirror", m.Name, "appid", req.AppID, "error", err)
			continue
		}
		return &Attempt{Source: m.Name, Path: path, Available: names}, nil
	}
	return &Attempt{Available: names}, fmt.Errorf("%w: every available mirror failed", ErrNoContent)
}

func (a *APIStrategy) fetch(ctx context.Context, m constants.Mirror, req Request) (string, error) {
	dest := filepath.Join(req.WorkDir, fmt.Sprintf("%s_%s.zip", req.AppID, strings.ReplaceAll(m.Name, " ", "_")))
	if err := a.fs.MkdirAll(req.WorkDir, 0o755); err != nil {
		return "", err
	}
	f, err := a.fs.Create(dest)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", dest, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, constants.DownloadTimeout)
	defer cancel()

	var progress httpclient.ProgressFunc
	if req.Progress != nil {
		progress = func(read, total int64) { req.Progress(m.Name, read, total) }
	}

	a.log.Info("Downloading from mirror", "mirror", m.Name, "appid", req.AppID)
	n, err := a.http.Stream(reqCtx, mirrorURL(m, req.AppID), f, constants.MinPayloadSize, progress)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n <= constants.MinPayloadSize {
		err = fmt.Errorf("payload too small (%d bytes)", n)
	}
	if err != nil {
		_ = a.fs.Remove(dest)
		return "", err
	}

	if archive.IsZip(a.fs, dest) {
		a.log.Info("Mirror download complete", "mirror", m.Name, "appid", req.AppID, "size", n)
		return dest, nil
	}
	return a.keepRawPayload(dest, req.AppID)
}

var scriptMarkers = [][]byte{[]byte("addappid"), []byte("setManifestid")}

// keepRawPayload renames a non-zip payload to <appid>.lua when it looks like
// a plugin script and to <appid>.manifest otherwise. HTML error pages are rejected.
func (a *APIStrategy) keepRawPayload(path, appid string) (string, error) {
	head, err := readHead(a.fs, path, 1024)
	if err != nil {
		_ = a.fs.Remove(path)
		return "", err
	}
	if isHTML(head) {
		_ = a.fs.Remove(path)
		return "", fmt.Errorf("mirror returned an HTML page")
	}

	ext := ".manifest"
	for _, marker := range scriptMarkers {
		if bytes.Contains(head, marker) {
			ext = ".lua"
			break
		}
	}
	target := filepath.Join(filepath.Dir(path), appid+ext)
	if err := a.fs.Rename(path, target); err != nil {
		return "", fmt.Errorf("renaming payload: %w", err)
	}
	return target, nil
}

func readHead(fs afero.Fs, path string, n int) ([]byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

func isHTML(head []byte) bool {
	if strings.HasPrefix(http.DetectContentType(head), "text/html") {
		return true
	}
	lower := bytes.ToLower(bytes.TrimSpace(head))
	return bytes.HasPrefix(lower, []byte("<!doctype")) || bytes.HasPrefix(lower, []byte("<html"))
}

// MirrorStatus HEADs every mirror with the status AppID and classifies the answer.
func (a *APIStrategy) MirrorStatus(ctx context.Context) map[string]string {
	var mu sync.Mutex
	status := make(map[string]string, len(a.mirrors))
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range a.mirrors {
		g.Go(func() error {
			s := classifyProbe(a.http.Head(gctx, mirrorURL(m, constants.StatusTestAppID), constants.HeadTimeout))
			mu.Lock()
			status[m.Name] = s
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return status
}

func classifyProbe(resp *httpclient.Response, err error) string {
	if err != nil {
		if isTimeout(err) {
			return "timeout"
		}
		return "connection_error"
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return "online"
	case http.StatusNotFound:
		return "no_content"
	default:
		return fmt.Sprintf("http_%d", resp.StatusCode)
	}
}
