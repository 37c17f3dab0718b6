package chat

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Body limits applied before a message goes on the wire.
const (
	MaxMessageBytes = 4096 // 4KB max frame size
	MaxTextChars    = 2000 // max character count
)

var (
	// ErrEmptyMessage is returned for empty or whitespace-only bodies.
	ErrEmptyMessage = errors.New("chat: message text is empty")

	// ErrMessageTooLong is returned when a body exceeds MaxMessageBytes or
	// MaxTextChars.
	ErrMessageTooLong = errors.New("chat: message too long")

	// ErrInvalidText is returned for bodies that are not valid UTF-8.
	ErrInvalidText = errors.New("chat: message contains invalid UTF-8")
)

// ValidateMessage reports whether body may be sent. Nothing is trimmed; a
// body that passes is sent exactly as typed.
func ValidateMessage(body string) error {
	switch {
	case strings.TrimSpace(body) == "":
		return ErrEmptyMessage
	case len(body) > MaxMessageBytes:
		return ErrMessageTooLong
	case !utf8.ValidString(body):
		return ErrInvalidText
	case utf8.RuneCountInString(body) > MaxTextChars:
		return ErrMessageTooLong
	}
	return nil
}
