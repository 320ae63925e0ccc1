package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Guliveer/steam-gameloader-go/internal/app"
	"github.com/Guliveer/steam-gameloader-go/internal/dlc"
	"github.com/Guliveer/steam-gameloader-go/internal/download"
	"github.com/Guliveer/steam-gameloader-go/internal/fix"
	"github.com/Guliveer/steam-gameloader-go/internal/games"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
	"github.com/Guliveer/steam-gameloader-go/internal/placement"
	"github.com/Guliveer/steam-gameloader-go/internal/steam"
	"github.com/Guliveer/steam-gameloader-go/internal/store"
)

const maxJSONBody = 1 << 20

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeFailure maps a domain error onto an HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, download.ErrInvalidAppID),
		errors.Is(err, dlc.ErrNoDLCSelected),
		errors.Is(err, games.ErrNoGamesSelected),
		errors.Is(err, store.ErrQueryTooShort),
		errors.Is(err, placement.ErrUnsupportedExtension),
		errors.Is(err, placement.ErrNoPayload),
		errors.Is(err, app.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, dlc.ErrGameNotFound),
		errors.Is(err, games.ErrGameNotDetected),
		errors.Is(err, fix.ErrNotInstalled),
		errors.Is(err, fix.ErrNoFixApplied),
		errors.Is(err, fix.ErrNoFixAvailable),
		errors.Is(err, store.ErrAppNotFound):
		return http.StatusNotFound
	case errors.Is(err, fix.ErrJobRunning):
		return http.StatusConflict
	case errors.Is(err, steam.ErrSteamNotFound):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
	return false
}

// appidParam returns the {appid} path value, answering 400 when it is not numeric.
func appidParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	appid := strings.TrimSpace(r.PathValue("appid"))
	if !model.IsAppID(appid) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %q", download.ErrInvalidAppID, appid))
		return "", false
	}
	return appid, true
}

func queryBool(r *http.Request, name string) bool {
	switch strings.ToLower(r.URL.Query().Get(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func queryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, err := s.app.Locator.Detect(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"timestamp":   s.now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"steam_found": err == nil,
		"subscribers": s.app.Events.Subscribers(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, steamErr := s.app.Locator.Detect(ctx)
	applies, removes := s.app.Fixes.Jobs().ActiveCounts()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"systems": map[string]any{
			"download":     true,
			"fix":          s.app.Fixes.Catalog().Loaded(),
			"dlc":          true,
			"games":        true,
			"dll":          s.app.DLL.Simple(ctx).Ready,
			"steam":        steamErr == nil,
			"notify":       s.app.Notifier.HasNotifiers(),
			"cache":        s.app.Config.Cache.Backend,
			"fix_applies":  applies,
			"fix_removals": removes,
		},
		"timestamp": s.now().Format(time.RFC3339),
	})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	root, err := s.app.Locator.Detect(ctx)
	valid := err == nil && steam.ValidateRoot(s.app.FS, root) == nil

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"system": map[string]any{
			"steam": map[string]any{
				"path":    root,
				"running": s.app.Controller.IsRunning(ctx),
				"valid":   valid,
				"found":   err == nil,
			},
			"dll": s.app.DLL.Simple(ctx),
			"cache": map[string]any{
				"backend":   s.app.Config.Cache.Backend,
				"can_clear": true,
			},
		},
		"timestamp": s.now().Format(time.RFC3339),
	})
}
