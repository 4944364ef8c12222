package realtime

import "encoding/json"

// Table names carried in change events. Payloads are advisory: consumers are
// always free to ignore the payload and re-fetch from the backend instead.
const (
	TableParticipants = "participants"
	TableMeetings     = "meetings"
	TableWaitingRoom  = "waiting_room"
)

// Broadcast event names.
const (
	EventMeetingEnded = "meeting_ended"
)

// Message is the wire envelope for the per-meeting channel.
type Message struct {
	Type    string          `json:"type"` // "change" | "broadcast" | "system"
	Table   string          `json:"table,omitempty"`
	Event   string          `json:"event,omitempty"` // INSERT | UPDATE | DELETE, or broadcast name
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChangeEvent is a postgres table change delivered on the channel.
type ChangeEvent struct {
	Table   string
	Event   string
	Payload json.RawMessage
}

// WaitingRoomPayload is the decoded payload of a waiting_room change. UserID
// addresses the affected participant; consumers must filter on it before
// acting since all waiting participants share the meeting channel.
type WaitingRoomPayload struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// MeetingPayload is the decoded payload of a meetings change.
type MeetingPayload struct {
	ID                     string `json:"id"`
	Status                 string `json:"status"`
	SpotlightParticipantID string `json:"spotlight_participant_id"`
}
