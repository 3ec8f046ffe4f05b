package realtime

import (
	"context"
	"errors"

	"github.com/zhouzirui/ai-advisor/backend/internal/model/chat"
)

// Event types pushed to transcript mirror clients.
const (
	EventMessage = "message"
	EventClear   = "clear"
)

// ErrClosed is returned when publishing to or subscribing on a closed broker.
var ErrClosed = errors.New("realtime broker closed")

// Event describes a change to one session's transcript.
type Event struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId"`
	Message   *chat.Message `json:"message,omitempty"`
}

// MessageEvent wraps an appended transcript entry.
func MessageEvent(sessionID string, msg chat.Message) Event {
	return Event{Type: EventMessage, SessionID: sessionID, Message: &msg}
}

// ClearEvent announces that a session transcript was cleared.
func ClearEvent(sessionID string) Event {
	return Event{Type: EventClear, SessionID: sessionID}
}

// Broker fans transcript events out to subscribers of a session.
type Broker interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe returns a channel of events for sessionID. The returned cancel
	// func releases the subscription and closes the channel.
	Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error)
	Close() error
}

// Channel returns the pub/sub channel name for a session.
func Channel(sessionID string) string {
	return "ai-advisor-" + sessionID
}
