package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/Guliveer/steam-gameloader-go/internal/events"
	"github.com/Guliveer/steam-gameloader-go/internal/games"
)

type gameSelection struct {
	AppIDs    []string `json:"appids"`
	BackupDir string   `json:"backup_dir"`
}

// selected resolves the requested appids against the detected scripts,
// running a detection first when none has happened yet.
func (s *Server) selected(ctx context.Context, appids []string) ([]games.Game, error) {
	if len(appids) == 0 {
		return nil, games.ErrNoGamesSelected
	}
	if len(s.app.Games.Detected()) == 0 {
		if _, err := s.app.Games.Detect(ctx, false); err != nil {
			return nil, err
		}
	}
	picked := s.app.Games.Resolve(appids)
	if len(picked) == 0 {
		return nil, games.ErrNoGamesSelected
	}
	return picked, nil
}

func (s *Server) handleGamesInstalled(w http.ResponseWriter, r *http.Request) {
	list, fromCache, err := s.app.Games.Installed(r.Context(), queryBool(r, "force"))
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

func (s *Server) handleGamesDetect(w http.ResponseWriter, r *http.Request) {
	req := struct {
		FetchNames *bool `json:"fetch_names"`
	}{}
	if !decodeJSON(w, r, &req) {
		return
	}
	fetch := req.FetchNames == nil || *req.FetchNames

	det, err := s.app.Games.Detect(r.Context(), fetch)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.app.Events.Publish(events.GamesChanged, "", map[string]any{"action": "detect", "total": det.TotalGames})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "detection": det})
}

func (s *Server) handleGamesRefresh(w http.ResponseWriter, r *http.Request) {
	appid, ok := appidParam(w, r)
	if !ok {
		return
	}
	g, err := s.app.Games.Refresh(r.Context(), appid)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "game": g})
}

func (s *Server) handleGamesBackup(w http.ResponseWriter, r *http.Request) {
	var req gameSelection
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	picked, err := s.selected(ctx, req.AppIDs)
	if err != nil {
		writeFailure(w, err)
		return
	}

	res, err := s.app.Games.Backup(ctx, picked, strings.TrimSpace(req.BackupDir))
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.app.Events.Publish(events.GamesChanged, "", map[string]any{"action": "backup", "count": res.SuccessCount})
	writeJSON(w, http.StatusOK, map[string]any{"success": res.FailedCount == 0, "backup": res})
}

func (s *Server) handleGamesRemove(w http.ResponseWriter, r *http.Request) {
	var req gameSelection
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	picked, err := s.selected(ctx, req.AppIDs)
	if err != nil {
		writeFailure(w, err)
		return
	}

	res, err := s.app.Games.Remove(ctx, picked)
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.app.Events.Publish(events.GamesChanged, "", map[string]any{"action": "remove", "count": res.RemovedCount})
	writeJSON(w, http.StatusOK, map[string]any{"success": res.FailedCount == 0, "removal": res})
}

func (s *Server) handleGamesStatus(w http.ResponseWriter, r *http.Request) {
	layout, err := s.app.Layout(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"steam_path":     layout.Root,
		"stplugin_path":  layout.PluginDir(),
		"detected_games": len(s.app.Games.Detected()),
		"path":           s.app.Games.ValidatePath(layout.Root),
		"statistics":     s.app.Games.Statistics(),
	})
}

func (s *Server) handleGamesValidatePath(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Path string `json:"path"`
	}{}
	if !decodeJSON(w, r, &req) {
		return
	}
	path := strings.TrimSpace(req.Path)
	if path == "" {
		layout, err := s.app.Layout(r.Context())
		if err != nil {
			writeFailure(w, err)
			return
		}
		path = layout.Root
	}
	v := s.app.Games.ValidatePath(path)
	writeJSON(w, http.StatusOK, map[string]any{"success": v.Valid, "validation": v})
}

func (s *Server) handleGamesStatistics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "statistics": s.app.Games.Statistics()})
}
