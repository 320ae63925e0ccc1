// Package events fans progress events out to live subscribers such as the
// websocket endpoint.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	DownloadStarted  = "download.started"
	DownloadStage    = "download.stage"
	DownloadProgress = "download.progress"
	DownloadFinished = "download.finished"
	FixApply         = "fix.apply"
	FixRemove        = "fix.remove"
	DLCChanged       = "dlc.changed"
	GamesChanged     = "games.changed"
	DLLRepaired      = "dll.repaired"
	SteamState       = "steam.state"
)

// Event is one published message.
type Event struct {
	ID    string    `json:"id"`
	Type  string    `json:"type"`
	AppID string    `json:"appid,omitempty"`
	Time  time.Time `json:"time"`
	Data  any       `json:"data,omitempty"`
}

// Publisher is the producer side of a Hub.
type Publisher interface {
	Publish(typ, appid string, data any)
}

const subscriberBuffer = 64

// Hub broadcasts events to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	dropped atomic.Uint64
}

var _ Publisher = (*Hub)(nil)

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a subscriber. The returned func unsubscribes and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends an event to every subscriber.
func (h *Hub) Publish(typ, appid string, data any) {
	ev := Event{
		ID:    uuid.NewString(),
		Type:  typ,
		AppID: appid,
		Time:  time.Now(),
		Data:  data,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Nop is a Publisher that discards events.
type Nop struct{}

func (Nop) Publish(string, string, any) {}
