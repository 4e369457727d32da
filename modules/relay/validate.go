package relay

import (
	"errors"
	"unicode/utf8"
)

// Validation errors
var (
	ErrUsernameEmpty   = errors.New("username cannot be empty")
	ErrUsernameTooLong = errors.New("username exceeds maximum length")
	ErrRoomEmpty       = errors.New("room cannot be empty")
	ErrRoomTooLong     = errors.New("room exceeds maximum length")
	ErrTextEmpty       = errors.New("message text cannot be empty")
	ErrTextTooLong     = errors.New("message text exceeds maximum length")
	ErrInvalidUTF8     = errors.New("value is not valid UTF-8")
)

// Limits bounds the size of client-supplied identifiers and text, in bytes.
type Limits struct {
	MaxUsernameLength int
	MaxRoomLength     int
	MaxTextLength     int
}

// ValidateUsername validates a display name.
func (l Limits) ValidateUsername(username string) error {
	if username == "" {
		return ErrUsernameEmpty
	}
	if len(username) > l.MaxUsernameLength {
		return ErrUsernameTooLong
	}
	if !utf8.ValidString(username) {
		return ErrInvalidUTF8
	}
	return nil
}

// ValidateRoom validates a room key.
func (l Limits) ValidateRoom(room string) error {
	if room == "" {
		return ErrRoomEmpty
	}
	if len(room) > l.MaxRoomLength {
		return ErrRoomTooLong
	}
	if !utf8.ValidString(room) {
		return ErrInvalidUTF8
	}
	return nil
}

// ValidateText validates message content.
func (l Limits) ValidateText(text string) error {
	if text == "" {
		return ErrTextEmpty
	}
	if len(text) > l.MaxTextLength {
		return ErrTextTooLong
	}
	if !utf8.ValidString(text) {
		return ErrInvalidUTF8
	}
	return nil
}

// rejectReason maps a validation error onto a metrics label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrUsernameEmpty), errors.Is(err, ErrUsernameTooLong):
		return "invalid_username"
	case errors.Is(err, ErrRoomEmpty), errors.Is(err, ErrRoomTooLong):
		return "invalid_room"
	case errors.Is(err, ErrTextEmpty), errors.Is(err, ErrTextTooLong):
		return "invalid_text"
	case errors.Is(err, ErrInvalidUTF8):
		return "invalid_utf8"
	case errors.Is(err, ErrNotMember):
		return "not_member"
	default:
		return "other"
	}
}
