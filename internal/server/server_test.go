package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/steam-gameloader-go/internal/app"
	"github.com/Guliveer/steam-gameloader-go/internal/config"
	"github.com/Guliveer/steam-gameloader-go/internal/events"
	"github.com/Guliveer/steam-gameloader-go/internal/history"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
)

type stoppedRunner struct{}

func (stoppedRunner) Output(context.Context, string, ...string) ([]byte, error) {
	return nil, errors.New("exit status 1")
}

func (stoppedRunner) Start(string, ...string) error { return nil }

const loginUsers = `"users"
{
	"76561198000000001"
	{
		"AccountName"		"gabe"
		"PersonaName"		"Gaben"
		"MostRecent"		"1"
		"Timestamp"		"1700000000"
	}
}`

func steamRoot(t *testing.T, fs afero.Fs, root string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Join(root, "config", "stplug-in"), 0o755))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(root, "config", "loginusers.vdf"), []byte(loginUsers), 0o644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(root, "steamapps", "appmanifest_570.acf"), []byte(`"AppState"
{
	"appid"		"570"
	"name"		"Dota 2"
	"installdir"		"dota 2 beta"
}`), 0o644))
}

func newTestServer(t *testing.T) (*Server, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	steamRoot(t, fs, "/steam")

	cfg := config.Default()
	cfg.Steam.Path = "/steam"
	cfg.Cache.Backend = config.CacheBackendMemory
	cfg.Paths.HistoryDB = filepath.Join(t.TempDir(), "history.db")
	cfg.Paths.FixesCatalog = "/app/fixes_list.json"

	a, err := app.New(context.Background(), cfg, logger.Nop(), app.WithFS(fs), app.WithRunner(stoppedRunner{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return New(a, "127.0.0.1:0"), fs
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["steam_found"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestInvalidAppID(t *testing.T) {
	s, _ := newTestServer(t)
	for _, path := range []string{"/api/game/abc/download", "/api/game/12a/verify-installation"} {
		rec := do(t, s, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		body := decode(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["error"], "invalid appid")
	}
}

func TestDownloadAlreadyInstalled(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.app.History.Record(context.Background(), history.Entry{AppID: "570", Success: true, Source: "mirror"}))

	rec := do(t, s, http.MethodPost, "/api/game/570/download", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["already_installed"])
	assert.Equal(t, true, body["download_completed"])
}

func TestInstallStatus(t *testing.T) {
	s, fs := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/game/570/install-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["installed"])

	require.NoError(t, afero.WriteFile(fs, "/steam/config/stplug-in/570.lua", []byte("addappid(570)\n"), 0o644))
	require.NoError(t, s.app.History.Record(context.Background(), history.Entry{AppID: "570", Success: true, Source: "upload"}))

	rec = do(t, s, http.MethodGet, "/api/game/570/install-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["installed"])
	assert.Equal(t, true, body["download_completed"])
	require.Contains(t, body, "game_info")
}

func TestUploadLua(t *testing.T) {
	s, fs := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "570.lua")
	require.NoError(t, err)
	_, err = fw.Write([]byte("addappid(570)\n"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("appid", "570"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/zip", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["success"])

	ok, err := afero.Exists(fs, "/steam/config/stplug-in/570.lua")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUploadRejectsUnknownExtension(t *testing.T) {
	s, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("hello"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/zip", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDLCInstallUninstall(t *testing.T) {
	s, fs := newTestServer(t)
	sub, unsubscribe := s.app.Events.Subscribe()
	defer unsubscribe()

	rec := do(t, s, http.MethodPost, "/api/dlc/570/install", map[string]any{"dlc_ids": []string{"1001", "1002"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode(t, rec)["result"].(map[string]any)
	assert.Equal(t, float64(2), res["installed"])

	ev := <-sub
	assert.Equal(t, events.DLCChanged, ev.Type)
	assert.Equal(t, "570", ev.AppID)

	data, err := afero.ReadFile(fs, "/steam/config/stplug-in/Steamtools.lua")
	require.NoError(t, err)
	assert.Contains(t, string(data), "1001")

	rec = do(t, s, http.MethodPost, "/api/dlc/570/uninstall", map[string]any{"dlc_ids": []string{"1001"}})
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode(t, rec)["result"].(map[string]any)
	assert.Equal(t, float64(1), res["removed"])

	rec = do(t, s, http.MethodPost, "/api/dlc/570/install", map[string]any{"dlc_ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDLCLookupUnknownRoute(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/dlc/570/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/dlc/games/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGamesDetect(t *testing.T) {
	s, fs := newTestServer(t)
	dir := "/steam/config/stplug-in/"
	body := func(id string) []byte {
		return []byte(strings.Repeat("-- plugin script padding line\n", 4) + "addappid(" + id + ", 1)\n")
	}
	require.NoError(t, afero.WriteFile(fs, dir+"105600.lua", body("105600"), 0o644))
	require.NoError(t, afero.WriteFile(fs, dir+"1245620.lua", body("1245620"), 0o644))
	// Ignored: stem too short, body too small, stem not numeric.
	require.NoError(t, afero.WriteFile(fs, dir+"570.lua", body("570"), 0o644))
	require.NoError(t, afero.WriteFile(fs, dir+"292030.lua", []byte("addappid(292030)\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, dir+"Steamtools.lua", body("10"), 0o644))

	rec := do(t, s, http.MethodPost, "/api/games/detect", map[string]any{"fetch_names": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	det := decode(t, rec)["detection"].(map[string]any)
	assert.Equal(t, float64(2), det["total_games"])

	var ids []string
	for _, g := range det["games"].([]any) {
		ids = append(ids, g.(map[string]any)["appid"].(string))
	}
	assert.ElementsMatch(t, []string{"105600", "1245620"}, ids)

	rec = do(t, s, http.MethodPost, "/api/games/remove", map[string]any{"appids": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSteamSetPath(t *testing.T) {
	s, fs := newTestServer(t)
	steamRoot(t, fs, "/games/Steam")

	rec := do(t, s, http.MethodPost, "/api/steam/path", map[string]any{"path": "/nowhere"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/steam/path", map[string]any{"path": "/games/Steam"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/games/Steam", decode(t, rec)["steam_path"])

	rec = do(t, s, http.MethodGet, "/api/steam/path", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/games/Steam", decode(t, rec)["steam_path"])
}

func TestSteamUsernameAndHeader(t *testing.T) {
	s, _ := newTestServer(t)
	s.now = func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }

	rec := do(t, s, http.MethodGet, "/api/steam/user/username", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Gaben", decode(t, rec)["username"])

	rec = do(t, s, http.MethodGet, "/api/header/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Bom dia", body["greeting"])
	assert.Equal(t, "/steam", body["steam_path"])
	assert.Equal(t, false, body["steam_running"])
}

func TestSteamControlRejectsUnknownAction(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/steam/control", map[string]any{"action": "pause"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFixStatusWithoutJob(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/fixes/apply-status/570", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "none", decode(t, rec)["status"])

	rec = do(t, s, http.MethodPost, "/api/fixes/apply", map[string]any{"appid": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownAPIRoute(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestPages(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	for _, p := range pageNames {
		rec = do(t, s, http.MethodGet, "/"+p, nil)
		assert.Equal(t, http.StatusOK, rec.Code, p)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"), p)
	}

	rec = do(t, s, http.MethodGet, "/static/js/app.js", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventsWebsocket(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events?type=dll", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return s.app.Events.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.app.Events.Publish(events.DownloadStarted, "570", nil)
	s.app.Events.Publish(events.DLLRepaired, "", map[string]any{"path": "/steam/hid.dll"})

	var ev events.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, events.DLLRepaired, ev.Type)
}
