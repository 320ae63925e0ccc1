package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Guliveer/steam-gameloader-go/internal/steam"
	"github.com/Guliveer/steam-gameloader-go/internal/utils"
)

const defaultUsername = "Jogador"

// HeaderData feeds the page header: who is logged in and whether the
// loader can work right now.
type HeaderData struct {
	Success      bool      `json:"success"`
	Username     string    `json:"username"`
	Greeting     string    `json:"greeting"`
	SteamPath    string    `json:"steam_path"`
	SteamFound   bool      `json:"steam_found"`
	SteamRunning bool      `json:"steam_running"`
	DLLAvailable bool      `json:"dll_available"`
	Timestamp    time.Time `json:"timestamp"`
}

// currentUser returns the logged-in account, nil when none can be read.
func (s *Server) currentUser(ctx context.Context) *steam.User {
	layout, err := s.app.Layout(ctx)
	if err != nil {
		return nil
	}
	u, err := steam.CurrentUser(s.app.FS, layout)
	if err != nil {
		return nil
	}
	return u
}

func (s *Server) username(ctx context.Context) string {
	if u := s.currentUser(ctx); u != nil && strings.TrimSpace(u.PersonaName) != "" {
		return u.PersonaName
	}
	return defaultUsername
}

func (s *Server) buildHeader(ctx context.Context) HeaderData {
	now := s.now()
	h := HeaderData{
		Success:   true,
		Username:  s.username(ctx),
		Greeting:  utils.Greeting(now.Hour()),
		Timestamp: now,
	}
	if root, err := s.app.Locator.Detect(ctx); err == nil {
		h.SteamPath = root
		h.SteamFound = true
	}
	h.SteamRunning = s.app.Controller.IsRunning(ctx)
	h.DLLAvailable = s.app.DLL.Simple(ctx).Ready
	return h
}

func (s *Server) handleHeaderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h, ok := s.header.Get(ctx, "status"); ok {
		writeJSON(w, http.StatusOK, h)
		return
	}
	h := s.buildHeader(ctx)
	if err := s.header.Set(ctx, "status", h); err != nil {
		s.log.Warn("Failed to cache header status", "error", err)
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleSteamUsername(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "username": s.username(r.Context())})
}

func (s *Server) handleSteamUserInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	layout, err := s.app.Layout(ctx)
	if err != nil {
		writeFailure(w, err)
		return
	}
	users, err := steam.Users(s.app.FS, layout)
	if err != nil && !errors.Is(err, steam.ErrNoUser) {
		s.log.Debug("Failed to read Steam users", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"username":     s.username(ctx),
		"current_user": s.currentUser(ctx),
		"users":        users,
		"steam_path":   layout.Root,
	})
}

func (s *Server) handleSteamUserRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.app.Locator.Clear()
	if err := s.header.Clear(ctx); err != nil {
		s.log.Warn("Failed to clear header cache", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "username": s.username(ctx)})
}

func (s *Server) handleSteamStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	root, err := s.app.Locator.Detect(ctx)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"found":      err == nil,
		"steam_path": root,
		"running":    s.app.Controller.IsRunning(ctx),
		"dll":        s.app.DLL.Simple(ctx),
	})
}

func (s *Server) handleSteamPath(w http.ResponseWriter, r *http.Request) {
	root, err := s.app.Locator.Detect(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	resp := map[string]any{
		"success":    true,
		"steam_path": root,
		"valid":      steam.ValidateRoot(s.app.FS, root) == nil,
	}
	if _, age, ok := s.app.Locator.Cached(); ok {
		resp["cached"] = true
		resp["cache_age"] = age.Round(time.Second).String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSteamSetPath(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Path string `json:"path"`
	}{}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()

	v := s.app.Locator.ValidateManual(req.Path)
	if !v.Valid {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": v.Message, "validation": v})
		return
	}
	s.app.SetSteamPath(ctx, v.Path)
	if err := s.header.Clear(ctx); err != nil {
		s.log.Warn("Failed to clear header cache", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "steam_path": v.Path, "validation": v})
}

func (s *Server) handleSteamControl(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Action string `json:"action"`
	}{}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	action := strings.ToLower(strings.TrimSpace(req.Action))

	if err := s.app.ControlSteam(ctx, action); err != nil {
		writeFailure(w, err)
		return
	}
	if err := s.header.Clear(ctx); err != nil {
		s.log.Warn("Failed to clear header cache", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"action":  action,
		"running": s.app.Controller.IsRunning(ctx),
	})
}

func (s *Server) handleDLLStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := map[string]any{
		"success": true,
		"status":  s.app.DLL.Status(ctx),
		"simple":  s.app.DLL.Simple(ctx),
	}
	if queryBool(r, "report") {
		resp["report"] = s.app.DLL.Report(ctx)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDLLRepair(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.app.DLL.Recreate(ctx, ""); err != nil {
		writeFailure(w, err)
		return
	}
	if err := s.header.Clear(ctx); err != nil {
		s.log.Warn("Failed to clear header cache", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": s.app.DLL.Status(ctx)})
}

func (s *Server) handleSteamClearCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.app.Locator.Clear()
	s.app.DLL.Reset(ctx)
	err := errors.Join(s.header.Clear(ctx), s.app.Games.ClearInstalled(ctx))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Cache do Steam limpo"})
}

func (s *Server) handleSteamHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	root, err := s.app.Locator.Detect(ctx)
	checks := map[string]string{"steam_path": "ok", "dll": "ok", "user": "ok"}
	healthy := true

	if err != nil {
		checks["steam_path"] = err.Error()
		healthy = false
	}
	if !s.app.DLL.Simple(ctx).Ready {
		checks["dll"] = "not ready"
		healthy = false
	}
	if s.currentUser(ctx) == nil {
		checks["user"] = "no user found"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy":    healthy,
		"steam_path": root,
		"checks":     checks,
	})
}
