package realtime

import (
	"encoding/json"
	"strconv"
	"time"
)

// Event names pushed to clients.
const (
	EventNewError = "NewError"
	EventNewAlert = "NewAlert"
)

// SystemGroup receives alerts that are not scoped to an application.
const SystemGroup = "system_alerts"

const applicationGroupPrefix = "app_"

// Frame types.
const (
	FrameConnected = "connected"
	FrameEvent     = "event"
	FrameAck       = "ack"
	FrameError     = "error"
	FramePong      = "pong"
)

// GroupForApplication returns the group name for an application id.
func GroupForApplication(applicationID uint64) string {
	return applicationGroupPrefix + strconv.FormatUint(applicationID, 10)
}

// OutboundEvent is a notification addressed to one group.
type OutboundEvent struct {
	Name      string
	Group     string
	Payload   any
	EmittedAt time.Time
}

// Frame is the JSON envelope exchanged over the channel.
type Frame struct {
	Type         string          `json:"type"`
	Event        string          `json:"event,omitempty"`
	Group        string          `json:"group,omitempty"`
	Action       string          `json:"action,omitempty"`
	RequestID    string          `json:"request_id,omitempty"`
	ConnectionID string          `json:"connection_id,omitempty"`
	Error        string          `json:"error,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	EmittedAt    *time.Time      `json:"emitted_at,omitempty"`
}

// encodeEvent renders evt as an event frame.
func encodeEvent(evt OutboundEvent) ([]byte, error) {
	payload, errPayload := json.Marshal(evt.Payload)
	if errPayload != nil {
		return nil, errPayload
	}
	emittedAt := evt.EmittedAt.UTC()
	return json.Marshal(Frame{
		Type:      FrameEvent,
		Event:     evt.Name,
		Group:     evt.Group,
		Payload:   payload,
		EmittedAt: &emittedAt,
	})
}
