// ABOUTME: Push event envelope and constructors for client-facing payloads
// ABOUTME: Events are serialized as {"type": ..., "data": ...} JSON frames

package push

import (
	"encoding/json"
	"fmt"
)

// Event is the wire envelope for every push frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types
const (
	TypeNewMessage = "new_message"
	TypeAck        = "ack"
)

// NewMessageEvent builds the event broadcast when an assistant reply is
// persisted. The message payload is included in full so clients need no
// follow-up fetch.
func NewMessageEvent(conversationID string, message any) Event {
	return Event{
		Type: TypeNewMessage,
		Data: map[string]any{
			"conversation_id": conversationID,
			"message":         message,
		},
	}
}

// AckEvent wraps a client payload in an acknowledgement frame.
func AckEvent(payload any) Event {
	return Event{
		Type: TypeAck,
		Data: payload,
	}
}

// Marshal serializes the event for the wire.
func (e Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s event: %w", e.Type, err)
	}
	return data, nil
}
