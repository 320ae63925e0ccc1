package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHubDelivers(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe()
	defer unsubscribe()

	h.Publish(DownloadStarted, "570", map[string]string{"stage": "api"})

	select {
	case ev := <-ch:
		require.Equal(t, DownloadStarted, ev.Type)
		require.Equal(t, "570", ev.AppID)
		require.NotEmpty(t, ev.ID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	_, unsubscribe := h.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(DownloadProgress, "570", i)
	}
	require.Equal(t, uint64(10), h.Dropped())
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe()
	require.Equal(t, 1, h.Subscribers())

	unsubscribe()
	unsubscribe()
	require.Equal(t, 0, h.Subscribers())

	_, open := <-ch
	require.False(t, open)

	h.Publish(SteamState, "", nil)
}
