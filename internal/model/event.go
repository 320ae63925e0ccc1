package model

// Event represents a loader event type for notification filtering and logging.
type Event string

// All supported loader events.
const (
	EventDownloadSuccess Event = "DOWNLOAD_SUCCESS"
	EventDownloadFailed  Event = "DOWNLOAD_FAILED"
	EventFixApplied      Event = "FIX_APPLIED"
	EventFixFailed       Event = "FIX_FAILED"
	EventFixRemoved      Event = "FIX_REMOVED"
	EventDLCInstalled    Event = "DLC_INSTALLED"
	EventDLCRemoved      Event = "DLC_REMOVED"
	EventGamesBackup     Event = "GAMES_BACKUP"
	EventGamesRemoved    Event = "GAMES_REMOVED"
	EventDLLRepaired     Event = "DLL_REPAIRED"
	EventSteamStarted    Event = "STEAM_STARTED"
	EventSteamStopped    Event = "STEAM_STOPPED"
	EventTest            Event = "TEST"
)

// AllEvents returns a slice of all defined events.
func AllEvents() []Event {
	return []Event{
		EventDownloadSuccess,
		EventDownloadFailed,
		EventFixApplied,
		EventFixFailed,
		EventFixRemoved,
		EventDLCInstalled,
		EventDLCRemoved,
		EventGamesBackup,
		EventGamesRemoved,
		EventDLLRepaired,
		EventSteamStarted,
		EventSteamStopped,
		EventTest,
	}
}

// String returns the string representation of an Event.
func (e Event) String() string {
	return string(e)
}

// ParseEvent converts a string to an Event. Returns empty string if invalid.
func ParseEvent(s string) Event {
	for _, e := range AllEvents() {
		if string(e) == s {
			return e
		}
	}
	return ""
}
