package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
)

// Discord posts embeds to a Discord webhook.
type Discord struct {
	url    string
	client *http.Client
}

const (
	colorSuccess = 0x2ECC71
	colorFailure = 0xE74C3C
	colorWarning = 0xF1C40F
	// steamBlue is used for events without a color of their own.
	steamBlue = 0x1B2838
)

var eventColors = map[model.Event]int{
	model.EventDownloadSuccess: colorSuccess,
	model.EventFixApplied:      colorSuccess,
	model.EventDLCInstalled:    colorSuccess,
	model.EventDownloadFailed:  colorFailure,
	model.EventFixFailed:       colorFailure,
	model.EventDLLRepaired:     colorWarning,
	model.EventGamesRemoved:    colorWarning,
}

var eventTitles = map[model.Event]string{
	model.EventDownloadSuccess: "Download concluído",
	model.EventDownloadFailed:  "Falha no download",
	model.EventFixApplied:      "Fix aplicado",
	model.EventFixFailed:       "Falha ao aplicar fix",
	model.EventFixRemoved:      "Fix removido",
	model.EventDLCInstalled:    "DLCs instaladas",
	model.EventDLCRemoved:      "DLCs removidas",
	model.EventGamesBackup:     "Backup de jogos",
	model.EventGamesRemoved:    "Jogos removidos",
	model.EventDLLRepaired:     "hid.dll reparado",
	model.EventSteamStarted:    "Steam iniciado",
	model.EventSteamStopped:    "Steam fechado",
	model.EventTest:            "Notificação de teste",
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Fields      []discordField `json:"fields,omitempty"`
	Thumbnail   *discordImage  `json:"thumbnail,omitempty"`
}

type discordImage struct {
	URL string `json:"url"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// Name implements Notifier.
func (d *Discord) Name() string { return "Discord" }

func embedFor(n model.Notification, now time.Time) discordEmbed {
	title, ok := eventTitles[n.Event]
	if !ok {
		title = string(n.Event)
	}
	color, ok := eventColors[n.Event]
	if !ok {
		color = steamBlue
	}

	e := discordEmbed{
		Title:       title,
		Description: n.Message,
		Color:       color,
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
	if n.AppID != "" {
		e.URL = fmt.Sprintf(constants.StoreAppURL, n.AppID)
		e.Thumbnail = &discordImage{URL: fmt.Sprintf(constants.HeaderImageURL, n.AppID)}
		e.Fields = append(e.Fields, discordField{Name: "AppID", Value: n.AppID, Inline: true})
	}
	for _, f := range n.Fields {
		e.Fields = append(e.Fields, discordField{Name: f.Key, Value: f.Value, Inline: true})
	}
	return e
}

// Send posts n as a single embed.
func (d *Discord) Send(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(discordPayload{Username: appName, Embeds: []discordEmbed{embedFor(n, time.Now())}})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}
	if err := postJSON(ctx, d.client, d.url, body); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}
