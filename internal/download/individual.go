package download

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/httpclient"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
)

// IndividualStrategy fetches <appid>.lua and <appid>.manifest as raw files,
// keeping the first usable copy of each.
type IndividualStrategy struct {
	fs           afero.Fs
	http         httpclient.Fetcher
	luaURLs      []string
	manifestURLs []string
	log          *logger.Logger
}

// NewIndividualStrategy creates the raw-file stage.
func NewIndividualStrategy(fs afero.Fs, fetcher httpclient.Fetcher, luaURLs, manifestURLs []string, log *logger.Logger) *IndividualStrategy {
	return &IndividualStrategy{fs: fs, http: fetcher, luaURLs: luaURLs, manifestURLs: manifestURLs, log: log}
}

func (s *IndividualStrategy) Name() string { return "individual" }

func (s *IndividualStrategy) Attempt(ctx context.Context, req Request) (*Attempt, error) {
	dir := filepath.Join(req.WorkDir, "individual")
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	found := 0
	for _, set := range []struct {
		ext       string
		templates []string
	}{
		{".lua", s.luaURLs},
		{".manifest", s.manifestURLs},
	} {
		for _, tmpl := range set.templates {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if s.fetchOne(ctx, strings.ReplaceAll(tmpl, constants.AppIDPlaceholder, req.AppID), filepath.Join(dir, req.AppID+set.ext)) {
				found++
				break
			}
		}
	}

	if found == 0 {
		return nil, fmt.Errorf("%w: no raw files for %s", ErrNoContent, req.AppID)
	}
	return &Attempt{Source: constants.SourceIndividual, Path: dir, Available: []string{constants.SourceIndividual}}, nil
}

func (s *IndividualStrategy) fetchOne(ctx context.Context, url, dest string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, constants.IndividualTimeout)
	defer cancel()

	resp, err := s.http.Get(reqCtx, url)
	if err != nil {
		s.log.Debug("Raw file unavailable", "url", url, "error", err)
		return false
	}
	if resp.StatusCode != http.StatusOK || len(resp.Body) <= constants.MinPayloadSize {
		s.log.Debug("Raw file too small", "url", url, "size", len(resp.Body))
		return false
	}
	if err := afero.WriteFile(s.fs, dest, resp.Body, 0o644); err != nil {
		s.log.Warn("Failed to save raw file", "path", dest, "error", err)
		return false
	}
	s.log.Info("Raw file downloaded", "path", filepath.Base(dest), "size", len(resp.Body))
	return true
}
