package chat

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"plain", "hi", nil},
		{"surrounding space kept", "  hi  ", nil},
		{"empty", "", ErrEmptyMessage},
		{"spaces", "    ", ErrEmptyMessage},
		{"mixed whitespace", "\n\t \r", ErrEmptyMessage},
		{"too many bytes", strings.Repeat("a", MaxMessageBytes+1), ErrMessageTooLong},
		{"too many runes", strings.Repeat("é", MaxTextChars+1), ErrMessageTooLong},
		{"max runes", strings.Repeat("é", MaxTextChars), nil},
		{"invalid utf8", "hi \xff", ErrInvalidText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.body)
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateMessage(%q) = %v, want %v", tt.name, err, tt.want)
			}
		})
	}
}
