package model

import "fmt"

// Field is one key/value detail attached to a Notification.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Notification is what the logger hands to the notification providers.
type Notification struct {
	Event   Event   `json:"event"`
	Message string  `json:"message"`
	AppID   string  `json:"appid,omitempty"`
	Fields  []Field `json:"fields,omitempty"`
}

// NewNotification builds a Notification from slog-style key/value args.
// An "appid" key is lifted into AppID. A trailing key without value is dropped.
func NewNotification(event Event, msg string, args ...any) Notification {
	n := Notification{Event: event, Message: msg}
	for i := 0; i+1 < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		val := fmt.Sprint(args[i+1])
		if key == "appid" && n.AppID == "" {
			n.AppID = val
			continue
		}
		n.Fields = append(n.Fields, Field{Key: key, Value: val})
	}
	return n
}

// Text renders the message followed by its fields, one "key: value" per line.
func (n Notification) Text() string {
	s := n.Message
	if n.AppID != "" {
		s += "\nappid: " + n.AppID
	}
	for _, f := range n.Fields {
		s += "\n" + f.Key + ": " + f.Value
	}
	return s
}
