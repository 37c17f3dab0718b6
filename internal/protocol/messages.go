// Package protocol defines the named events exchanged with the chat relay and
// their JSON encoding. Every frame is a flat JSON object carrying a "type"
// discriminator next to the event's payload fields.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Event name constants
// ---------------------------------------------------------------------------

// Client -> Relay events.
const (
	TypeJoinRoom    = "join_room"
	TypeSendMessage = "send_message"
	TypeTyping      = "typing"
)

// Relay -> Client events.
const (
	TypeReceiveMessage = "receive_message"
	TypeUserTyping     = "user_typing"
)

// ---------------------------------------------------------------------------
// Envelope is used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the event type and the raw JSON frame for deferred parsing
// into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Relay payloads
// ---------------------------------------------------------------------------

// JoinRoomEvent announces room membership.
type JoinRoomEvent struct {
	RoomID string `json:"room_id"`
}

// MessageEvent is a chat message. It is sent as send_message and delivered
// back to other participants as receive_message.
type MessageEvent struct {
	ID     string `json:"id"`
	Room   string `json:"room"`
	Author string `json:"author"`
	Body   string `json:"message"`
	SentAt string `json:"time"`
}

// TypingEvent announces that Username is composing a message in RoomID.
type TypingEvent struct {
	Username string `json:"username"`
	RoomID   string `json:"room_id"`
}

// ---------------------------------------------------------------------------
// Relay -> Client payloads
// ---------------------------------------------------------------------------

// UserTypingEvent notifies that Sender is typing in the current room.
type UserTypingEvent struct {
	Sender string `json:"sender"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// Encode creates a JSON frame for an event. The payload is marshaled to a
// JSON object and the event name is injected under the "type" key. A nil
// payload yields a frame carrying only the type.
func Encode(eventType string, payload interface{}) ([]byte, error) {
	if eventType == "" {
		return nil, fmt.Errorf("protocol: empty event type")
	}

	m := map[string]interface{}{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("protocol: payload for %q is not a JSON object: %w", eventType, err)
		}
	}

	m["type"] = eventType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal frame: %w", err)
	}
	return out, nil
}

// Decode parses raw frame bytes into an Envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// DecodeMessage decodes a receive_message (or send_message) frame.
func DecodeMessage(raw []byte) (MessageEvent, error) {
	var m MessageEvent
	if err := json.Unmarshal(raw, &m); err != nil {
		return MessageEvent{}, fmt.Errorf("protocol: failed to decode message: %w", err)
	}
	return m, nil
}

// DecodeUserTyping decodes a user_typing frame.
func DecodeUserTyping(raw []byte) (UserTypingEvent, error) {
	var m UserTypingEvent
	if err := json.Unmarshal(raw, &m); err != nil {
		return UserTypingEvent{}, fmt.Errorf("protocol: failed to decode user_typing: %w", err)
	}
	return m, nil
}
