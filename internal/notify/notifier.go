// Package notify forwards loader events (downloads, fixes, DLC changes,
// DLL repairs) to Discord and generic webhooks.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Guliveer/steam-gameloader-go/internal/config"
	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
)

const appName = "Steam GameLoader"

// Notifier delivers one notification to an external service.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n model.Notification) error
}

// route pairs a notifier with the events it subscribed to. An empty filter
// takes every event.
type route struct {
	notifier Notifier
	events   []model.Event
}

func (r route) accepts(e model.Event) bool {
	return len(r.events) == 0 || e == model.EventTest || slices.Contains(r.events, e)
}

// Dispatcher fans notifications out to the configured notifiers.
type Dispatcher struct {
	routes  []route
	log     *logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from the notification configuration.
func NewDispatcher(cfg config.NotificationsConfig, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	d := &Dispatcher{log: log, timeout: constants.NotifyTimeout}

	hc := &http.Client{
		Timeout: constants.NotifyTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	if c := cfg.Discord; c != nil && c.Enabled {
		d.Add(&Discord{url: c.WebhookURL, client: hc}, parseEvents(c.Events)...)
	}
	if c := cfg.Webhook; c != nil && c.Enabled {
		d.Add(&Webhook{url: c.Endpoint, method: c.Method, client: hc}, parseEvents(c.Events)...)
	}
	return d
}

// Add registers n for events, or for every event when none are given.
func (d *Dispatcher) Add(n Notifier, events ...model.Event) {
	d.routes = append(d.routes, route{notifier: n, events: events})
}

// Dispatch sends n to every notifier subscribed to its event. Sends run in
// the background and survive the cancellation of ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, n model.Notification) {
	base := context.WithoutCancel(ctx)
	for _, r := range d.routes {
		if !r.accepts(n.Event) {
			continue
		}
		d.wg.Add(1)
		go func(nt Notifier) {
			defer d.wg.Done()
			sendCtx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()
			if err := nt.Send(sendCtx, n); err != nil {
				d.log.Warn("Notification failed", "provider", nt.Name(), "event", string(n.Event), "error", err)
			}
		}(r.notifier)
	}
}

// Wait blocks until in-flight notifications finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// NotifyFunc adapts the Dispatcher to the logger notify hook.
func (d *Dispatcher) NotifyFunc() logger.NotifyFunc {
	return d.Dispatch
}

// HasNotifiers reports whether any notifier is configured.
func (d *Dispatcher) HasNotifiers() bool {
	return len(d.routes) > 0
}

// parseEvents converts event names to model.Event values, dropping unknown names.
func parseEvents(names []string) []model.Event {
	events := make([]model.Event, 0, len(names))
	for _, name := range names {
		if e := model.ParseEvent(name); e != "" {
			events = append(events, e)
		}
	}
	return events
}

// deliver sends req and turns a 4xx/5xx answer into an error.
func deliver(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return deliver(client, req)
}
