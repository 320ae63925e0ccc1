package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/events"
)

// handleEvents streams hub events over a websocket. The optional appid and
// type query parameters filter the stream; type matches by prefix so
// "download" selects every download.* event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	appid := strings.TrimSpace(r.URL.Query().Get("appid"))
	typ := strings.TrimSpace(r.URL.Query().Get("type"))

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing") //nolint:errcheck

	ch, unsubscribe := s.app.Events.Subscribe()
	defer unsubscribe()

	// The client never sends anything; CloseRead answers control frames
	// and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	s.log.Debug("Event subscriber connected", "appid", appid, "type", typ)
	err = s.pump(ctx, conn, ch, func(ev events.Event) bool {
		return (appid == "" || ev.AppID == appid) && strings.HasPrefix(ev.Type, typ)
	})
	s.log.Debug("Event subscriber disconnected", "error", err)

	if ctx.Err() == nil {
		conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck
	}
}

func (s *Server) pump(ctx context.Context, conn *websocket.Conn, ch <-chan events.Event, keep func(events.Event) bool) error {
	ticker := time.NewTicker(constants.EventsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if !keep(ev) {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, constants.EventsWriteTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				return err
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, constants.EventsWriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
