package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event types for WebSocket and NATS notifications
const (
	EventCodeIssued   = "code_issued"
	EventCodeExpired  = "code_expired"
	EventLinkCreated  = "link_created"
	EventLinkRemoved  = "link_removed"
	EventGroupRevoked = "group_revoked"
	EventGroupGranted = "group_granted"
)

// Reasons carried by LinkRemovedEvent
const (
	ReasonCommand = "command"
	ReasonAPI     = "api"
	ReasonLeft    = "member_left"
)

// Event represents a link lifecycle notification
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewEvent stamps an event with a fresh ID and the current time
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// CodeEvent is sent when a code is issued or expires. The code itself is never published.
type CodeEvent struct {
	Game Identity `json:"game_id"`
}

// LinkEvent is sent when a link is created or removed
type LinkEvent struct {
	Game   Identity `json:"game_id"`
	Chat   Identity `json:"chat_id"`
	Reason string   `json:"reason,omitempty"`
}

// GroupEvent is sent when the authorization group is toggled without a link change
type GroupEvent struct {
	Game  Identity `json:"game_id"`
	Chat  Identity `json:"chat_id"`
	Group string   `json:"group"`
}
