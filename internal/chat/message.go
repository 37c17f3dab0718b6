package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/whisper/roomchat/internal/protocol"
)

// TimeLayout is the hour:minute format captured in Message.SentAt.
const TimeLayout = "15:04"

// Message is a single chat message in a room. Messages are values; the Log
// stores and returns copies so an appended message cannot change.
type Message struct {
	ID     string `json:"id"`      // client-generated at send time
	Room   string `json:"room"`    // room the message belongs to
	Author string `json:"author"`  // display name of the sender
	Body   string `json:"message"` // text content
	SentAt string `json:"time"`    // hour:minute, local time
}

// NewMessage builds an outbound message stamped with a fresh id and the
// hour:minute of now in now's location.
func NewMessage(room, author, body string, now time.Time) Message {
	return Message{
		ID:     uuid.NewString(),
		Room:   room,
		Author: author,
		Body:   body,
		SentAt: now.Format(TimeLayout),
	}
}

// Key returns the stable display key.
func (m Message) Key() string {
	return m.ID
}

// IsOwn reports whether username authored the message.
func (m Message) IsOwn(username string) bool {
	return m.Author == username
}

// Event converts the message to its wire payload.
func (m Message) Event() protocol.MessageEvent {
	return protocol.MessageEvent{
		ID:     m.ID,
		Room:   m.Room,
		Author: m.Author,
		Body:   m.Body,
		SentAt: m.SentAt,
	}
}

// FromEvent converts a wire payload into a Message.
func FromEvent(ev protocol.MessageEvent) Message {
	return Message{
		ID:     ev.ID,
		Room:   ev.Room,
		Author: ev.Author,
		Body:   ev.Body,
		SentAt: ev.SentAt,
	}
}
