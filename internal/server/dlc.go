package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Guliveer/steam-gameloader-go/internal/download"
	"github.com/Guliveer/steam-gameloader-go/internal/events"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
)

type dlcSelection struct {
	IDs []string `json:"dlc_ids"`
}

func (s *Server) handleDLCStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": s.app.DLC.Status(r.Context())})
}

func (s *Server) handleDLCGames(w http.ResponseWriter, r *http.Request) {
	list, fromCache, err := s.app.DLC.Games(r.Context(), queryBool(r, "refresh"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"games":      list,
		"total":      len(list),
		"from_cache": fromCache,
	})
}

// handleDLCLookup serves GET /api/dlc/games/{appid} and
// GET /api/dlc/{appid}/{list,summary,validate}.
func (s *Server) handleDLCLookup(w http.ResponseWriter, r *http.Request) {
	first, second := r.PathValue("first"), r.PathValue("second")
	ctx := r.Context()

	if first == "games" {
		if !model.IsAppID(second) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %q", download.ErrInvalidAppID, second))
			return
		}
		g, err := s.app.DLC.Game(ctx, second)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "game": g})
		return
	}

	if !model.IsAppID(first) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
		return
	}
	appid := first

	switch second {
	case "list":
		dlcs, err := s.app.DLC.List(ctx, appid)
		if err != nil {
			writeFailure(w, err)
			return
		}
		installed := 0
		for _, d := range dlcs {
			if d.Installed {
				installed++
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":         true,
			"appid":           appid,
			"available_dlcs":  dlcs,
			"total_available": len(dlcs),
			"total_installed": installed,
		})
	case "summary":
		sum, err := s.app.DLC.Summary(ctx, appid)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "summary": sum})
	case "validate":
		v, err := s.app.DLC.Validate(ctx, appid)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "validation": v})
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
	}
}

func (s *Server) handleDLCInstall(w http.ResponseWriter, r *http.Request) {
	appid, ok := appidParam(w, r)
	if !ok {
		return
	}
	var req dlcSelection
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.app.DLC.Install(r.Context(), appid, req.IDs)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.app.Events.Publish(events.DLCChanged, appid, map[string]any{"action": "install", "ids": res.Added})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}

func (s *Server) handleDLCUninstall(w http.ResponseWriter, r *http.Request) {
	appid, ok := appidParam(w, r)
	if !ok {
		return
	}
	var req dlcSelection
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.app.DLC.Uninstall(r.Context(), appid, req.IDs)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.app.Events.Publish(events.DLCChanged, appid, map[string]any{"action": "uninstall", "ids": req.IDs})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}

func (s *Server) handleDLCSearch(w http.ResponseWriter, r *http.Request) {
	appid := strings.TrimSpace(r.URL.Query().Get("appid"))
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if !model.IsAppID(appid) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %q", download.ErrInvalidAppID, appid))
		return
	}

	dlcs, err := s.app.DLC.Search(r.Context(), appid, q)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"appid":   appid,
		"query":   q,
		"dlcs":    dlcs,
		"count":   len(dlcs),
	})
}

func (s *Server) handleDLCClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DLC.ClearCache(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"message":             "Cache do DLC Manager limpo",
		"dlc_cache_cleared":   true,
		"games_cache_cleared": true,
	})
}

func (s *Server) handleDLCHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.DLC.Health(r.Context()))
}
