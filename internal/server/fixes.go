package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Guliveer/steam-gameloader-go/internal/download"
	"github.com/Guliveer/steam-gameloader-go/internal/fix"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
)

const fixSearchLimit = 20

func (s *Server) handleFixCheck(w http.ResponseWriter, r *http.Request) {
	appid, ok := appidParam(w, r)
	if !ok {
		return
	}
	report, err := s.app.Fixes.Check(r.Context(), appid)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleFixApply(w http.ResponseWriter, r *http.Request) {
	req := struct {
		AppID   string `json:"appid"`
		FixType string `json:"fix_type"`
	}{}
	if !decodeJSON(w, r, &req) {
		return
	}
	appid := strings.TrimSpace(req.AppID)
	if !model.IsAppID(appid) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %q", download.ErrInvalidAppID, appid))
		return
	}
	fixType := strings.ToLower(strings.TrimSpace(req.FixType))
	if fixType == "" {
		fixType = fix.TypeAuto
	}

	st, err := s.app.Fixes.Apply(r.Context(), appid, fixType)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "job": st})
}

func (s *Server) handleFixRemove(w http.ResponseWriter, r *http.Request) {
	appid, ok := appidParam(w, r)
	if !ok {
		return
	}
	st, err := s.app.Fixes.Remove(r.Context(), appid)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "job": st})
}

func (s *Server) writeJobStatus(w http.ResponseWriter, appid string, st fix.JobState, found bool) {
	if !found {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "appid": appid, "status": "none"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "appid": appid, "status": st.Status, "job": st})
}

func (s *Server) handleFixApplyStatus(w http.ResponseWriter, r *http.Request) {
	appid, ok := appidParam(w, r)
	if !ok {
		return
	}
	st, found := s.app.Fixes.Jobs().ApplyStatus(appid)
	s.writeJobStatus(w, appid, st, found)
}

func (s *Server) handleFixRemoveStatus(w http.ResponseWriter, r *http.Request) {
	appid, ok := appidParam(w, r)
	if !ok {
		return
	}
	st, found := s.app.Fixes.Jobs().RemoveStatus(appid)
	s.writeJobStatus(w, appid, st, found)
}

func (s *Server) handleFixCancel(w http.ResponseWriter, r *http.Request) {
	appid, ok := appidParam(w, r)
	if !ok {
		return
	}
	err := s.app.Fixes.Jobs().Cancel(appid)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "appid": appid, "message": "Fix job cancelled"})
	case errors.Is(err, fix.ErrCancelTooLate):
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "appid": appid, "error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "appid": appid, "message": "No active fix job"})
	}
}

func (s *Server) handleFixClearJobs(w http.ResponseWriter, _ *http.Request) {
	s.app.Fixes.Jobs().Forget()
	applies, removes := s.app.Fixes.Jobs().ActiveCounts()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "active_applies": applies, "active_removals": removes})
}

func (s *Server) handleFixSystemStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": s.app.Fixes.SystemStatus(r.Context())})
}

func (s *Server) handleFixLocalAll(w http.ResponseWriter, _ *http.Request) {
	all := s.app.Fixes.Catalog().All()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "fixes": all, "total": len(all)})
}

func (s *Server) handleFixLocalSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	matches, total := s.app.Fixes.Catalog().Search(q, queryInt(r, "limit", fixSearchLimit))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"query":   q,
		"results": matches,
		"count":   len(matches),
		"total":   total,
	})
}

func (s *Server) handleFixLocalStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": s.app.Fixes.Catalog().Stats()})
}
