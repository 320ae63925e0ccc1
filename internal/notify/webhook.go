package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Guliveer/steam-gameloader-go/internal/model"
)

// Webhook sends notifications to a generic HTTP endpoint. POST carries a
// JSON body; GET carries the same top-level values as query parameters.
type Webhook struct {
	url    string
	method string
	client *http.Client
}

type webhookPayload struct {
	Event     string            `json:"event"`
	App       string            `json:"app"`
	AppID     string            `json:"appid,omitempty"`
	Message   string            `json:"message"`
	// Text is the message with its fields, for chat webhooks that only read "text".
	Text      string            `json:"text"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Name implements Notifier.
func (w *Webhook) Name() string { return "Webhook" }

// Send delivers n to the endpoint.
func (w *Webhook) Send(ctx context.Context, n model.Notification) error {
	p := webhookPayload{
		Event:     string(n.Event),
		App:       appName,
		AppID:     n.AppID,
		Message:   n.Message,
		Text:      n.Text(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if len(n.Fields) > 0 {
		p.Fields = make(map[string]string, len(n.Fields))
		for _, f := range n.Fields {
			p.Fields[f.Key] = f.Value
		}
	}

	method := strings.ToUpper(w.method)
	switch method {
	case "", http.MethodPost:
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("webhook: marshal payload: %w", err)
		}
		if err := postJSON(ctx, w.client, w.url, body); err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		return nil
	case http.MethodGet:
		return w.get(ctx, p)
	default:
		return fmt.Errorf("webhook: unsupported method %q (use GET or POST)", method)
	}
}

func (w *Webhook) get(ctx context.Context, p webhookPayload) error {
	u, err := url.Parse(w.url)
	if err != nil {
		return fmt.Errorf("webhook: parse url: %w", err)
	}
	q := u.Query()
	q.Set("event", p.Event)
	q.Set("app", p.App)
	q.Set("message", p.Message)
	q.Set("timestamp", p.Timestamp)
	if p.AppID != "" {
		q.Set("appid", p.AppID)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	if err := deliver(w.client, req); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}
