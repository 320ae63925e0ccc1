package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/download"
	"github.com/Guliveer/steam-gameloader-go/internal/history"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
)

const maxUploadSize = 256 << 20

type downloadResponse struct {
	*download.Result
	AlreadyInstalled  bool      `json:"already_installed"`
	DownloadCompleted bool      `json:"download_completed"`
	GameName          string    `json:"game_name,omitempty"`
	VerifiedAt        time.Time `json:"verified_at"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	appid, ok := appidParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if !queryBool(r, "force") {
		if done, err := s.app.History.Completed(ctx, appid); err != nil {
			s.log.Warn("Failed to read download history", "appid", appid, "error", err)
		} else if done {
			writeJSON(w, http.StatusOK, downloadResponse{
				Result:            &download.Result{Success: true, AppID: appid, Available: []string{}, Stages: []download.StageReport{}},
				AlreadyInstalled:  true,
				DownloadCompleted: true,
				VerifiedAt:        s.now(),
			})
			return
		}
	}

	result, err := s.app.Downloader.Download(ctx, appid)
	if err != nil {
		writeFailure(w, err)
		return
	}

	resp := downloadResponse{Result: result, DownloadCompleted: result.Success, VerifiedAt: s.now()}
	if !result.Success {
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	resp.GameName, _ = s.app.Store.AppName(ctx, appid)
	writeJSON(w, http.StatusOK, resp)
}

type installStatus struct {
	Success           bool           `json:"success"`
	AppID             string         `json:"appid"`
	Installed         bool           `json:"installed"`
	DownloadCompleted bool           `json:"download_completed"`
	LastDownload      *history.Entry `json:"game_info,omitempty"`
	Script            any            `json:"script,omitempty"`
	VerificationType  string         `json:"verification_type,omitempty"`
	CheckedAt         time.Time      `json:"checked_at"`
}

// checkInstall reports whether the plugin script of appid is in place and
// what the history says about its last download.
func (s *Server) checkInstall(ctx context.Context, appid string) (installStatus, error) {
	st := installStatus{Success: true, AppID: appid, CheckedAt: s.now()}

	layout, err := s.app.Layout(ctx)
	if err != nil {
		return st, err
	}
	st.Installed, _ = afero.Exists(s.app.FS, filepath.Join(layout.PluginDir(), appid+".lua"))

	if st.DownloadCompleted, err = s.app.History.Completed(ctx, appid); err != nil {
		return st, err
	}
	if st.LastDownload, err = s.app.History.Last(ctx, appid); err != nil {
		return st, err
	}
	return st, nil
}

func (s *Server) handleInstallStatus(w http.ResponseWriter, r *http.Request) {
	appid, ok := appidParam(w, r)
	if !ok {
		return
	}
	st, err := s.checkInstall(r.Context(), appid)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleVerifyInstallation(w http.ResponseWriter, r *http.Request) {
	appid, ok := appidParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	st, err := s.checkInstall(ctx, appid)
	if err != nil {
		writeFailure(w, err)
		return
	}
	st.VerificationType = "forced"
	if st.Installed {
		if g, err := s.app.Games.Refresh(ctx, appid); err == nil {
			st.Script = g
		}
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSearchGames(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := queryInt(r, "limit", constants.StoreSearchMaxResults)

	results, err := s.app.Store.Search(r.Context(), q, limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"query":   q,
		"results": results,
		"total":   len(results),
	})
}

func (s *Server) handleGameDetails(w http.ResponseWriter, r *http.Request) {
	appid, ok := appidParam(w, r)
	if !ok {
		return
	}
	details, err := s.app.Store.GameDetails(r.Context(), appid)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "game": details})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid upload: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("missing form file \"file\""))
		return
	}
	defer file.Close()

	appid := strings.TrimSpace(r.FormValue("appid"))
	if appid != "" && !model.IsAppID(appid) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %q", download.ErrInvalidAppID, appid))
		return
	}

	res, err := s.app.Placer.ProcessUpload(r.Context(), hdr.Filename, file, appid)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handleDownloadStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"system":  s.app.Downloader.SystemStatus(r.Context()),
	})
}

func (s *Server) handleDownloadClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Downloader.ClearCache(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Cache de downloads limpo"})
}

func (s *Server) handleDownloadHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.app.History.List(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"downloads": entries,
		"total":     len(entries),
	})
}
