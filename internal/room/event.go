package room

import "encoding/json"

// Server-originated live-channel event names.
const (
	EventMessageReceived = "message-received"
	EventUserTyping      = "user-typing"
)

// Envelope is the wire frame for live-channel events.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Marshal encodes an event and its data as a broadcast payload.
func Marshal(event string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: data})
}
