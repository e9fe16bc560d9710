package kickhooks

import "encoding/json"

// EventPayload is the envelope common to every webhook delivery: real Kick events
// and locally-generated test events share this shape, with is_test_event telling
// the two apart. Data carries the event-specific body verbatim.
type EventPayload struct {
	IsTestEvent bool            `json:"is_test_event,omitempty"`
	Event       string          `json:"event"`
	Version     int             `json:"version"`
	Broadcaster json.RawMessage `json:"broadcaster,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}
