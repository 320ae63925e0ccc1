package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/steam-gameloader-go/internal/config"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
)

type captured struct {
	mu     sync.Mutex
	bodies []map[string]any
	query  []url.Values
}

func (c *captured) handler(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.Method == http.MethodGet {
		c.query = append(c.query, r.URL.Query())
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	c.bodies = append(c.bodies, body)
}

func TestDispatcherFiltersEvents(t *testing.T) {
	discord := &captured{}
	discordSrv := httptest.NewServer(http.HandlerFunc(discord.handler))
	defer discordSrv.Close()

	hook := &captured{}
	hookSrv := httptest.NewServer(http.HandlerFunc(hook.handler))
	defer hookSrv.Close()

	d := NewDispatcher(config.NotificationsConfig{
		Discord: &config.DiscordConfig{Enabled: true, WebhookURL: discordSrv.URL, Events: []string{"DOWNLOAD_SUCCESS", "bogus"}},
		Webhook: &config.WebhookConfig{Enabled: true, Endpoint: hookSrv.URL},
	}, logger.Nop())
	require.True(t, d.HasNotifiers())

	notify := d.NotifyFunc()
	notify(context.Background(), model.NewNotification(model.EventDownloadSuccess, "Download concluído", "appid", "570", "source", "Sadie"))
	notify(context.Background(), model.NewNotification(model.EventFixRemoved, "Fix removido", "appid", "440"))
	d.Wait()

	discord.mu.Lock()
	require.Len(t, discord.bodies, 1)
	assert.Equal(t, appName, discord.bodies[0]["username"])
	embed := discord.bodies[0]["embeds"].([]any)[0].(map[string]any)
	assert.Equal(t, "Download concluído", embed["title"])
	assert.Equal(t, "https://store.steampowered.com/app/570", embed["url"])
	fields := embed["fields"].([]any)
	require.Len(t, fields, 2)
	assert.Equal(t, "570", fields[0].(map[string]any)["value"])
	assert.Equal(t, "source", fields[1].(map[string]any)["name"])
	discord.mu.Unlock()

	hook.mu.Lock()
	require.Len(t, hook.bodies, 2)
	events := []any{hook.bodies[0]["event"], hook.bodies[1]["event"]}
	assert.ElementsMatch(t, []any{"DOWNLOAD_SUCCESS", "FIX_REMOVED"}, events)
	hook.mu.Unlock()
}

func TestDispatchSurvivesCancelledContext(t *testing.T) {
	hook := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(hook.handler))
	defer srv.Close()

	d := NewDispatcher(config.NotificationsConfig{
		Webhook: &config.WebhookConfig{Enabled: true, Endpoint: srv.URL},
	}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, model.Notification{Event: model.EventTest, Message: "ping"})
	d.Wait()

	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Len(t, hook.bodies, 1)
	assert.Equal(t, "ping", hook.bodies[0]["message"])
	assert.Equal(t, "ping", hook.bodies[0]["text"])
}

func TestWebhookGet(t *testing.T) {
	hook := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(hook.handler))
	defer srv.Close()

	w := &Webhook{url: srv.URL + "/?token=abc", method: "get", client: srv.Client()}
	err := w.Send(context.Background(), model.Notification{Event: model.EventDLLRepaired, Message: "hid.dll restaurado", AppID: "0"})
	require.NoError(t, err)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Len(t, hook.query, 1)
	q := hook.query[0]
	assert.Equal(t, "DLL_REPAIRED", q.Get("event"))
	assert.Equal(t, "abc", q.Get("token"))
	assert.Equal(t, "0", q.Get("appid"))
	assert.Equal(t, appName, q.Get("app"))
}

func TestWebhookRejectsUnknownMethod(t *testing.T) {
	w := &Webhook{method: "PATCH", url: "http://localhost", client: http.DefaultClient}
	err := w.Send(context.Background(), model.Notification{Event: model.EventTest})
	require.ErrorContains(t, err, "unsupported method")
}

func TestDiscordReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	dc := &Discord{url: srv.URL, client: srv.Client()}
	err := dc.Send(context.Background(), model.Notification{Event: model.EventFixFailed, Message: "boom"})
	require.ErrorContains(t, err, "unexpected status 400")
}

func TestEmbedFor(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	e := embedFor(model.Notification{Event: model.EventFixFailed, Message: "x", AppID: "730"}, now)
	assert.Equal(t, "Falha ao aplicar fix", e.Title)
	assert.Equal(t, colorFailure, e.Color)
	assert.Equal(t, "2024-05-01T12:00:00Z", e.Timestamp)
	require.NotNil(t, e.Thumbnail)
	assert.Contains(t, e.Thumbnail.URL, "/730/header.jpg")

	e = embedFor(model.Notification{Event: model.Event("CUSTOM"), Message: "y"}, now)
	assert.Equal(t, "CUSTOM", e.Title)
	assert.Equal(t, steamBlue, e.Color)
	assert.Nil(t, e.Thumbnail)
	assert.Empty(t, e.URL)
}

func TestRouteAccepts(t *testing.T) {
	all := route{}
	assert.True(t, all.accepts(model.EventDLCRemoved))

	only := route{events: []model.Event{model.EventFixApplied}}
	assert.True(t, only.accepts(model.EventFixApplied))
	assert.True(t, only.accepts(model.EventTest))
	assert.False(t, only.accepts(model.EventDLCRemoved))
}

func TestNoNotifiers(t *testing.T) {
	d := NewDispatcher(config.NotificationsConfig{}, nil)
	assert.False(t, d.HasNotifiers())
	d.Dispatch(context.Background(), model.Notification{Event: model.EventTest})
	d.Wait()
}
