package wsserver

import (
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/example/room-relay/domain/relay"
)

// Event names carried in the envelope.
const (
	EventJoinRoom    = "joinRoom"
	EventSendMessage = "sendMessage"
	EventMessage     = "message"
)

// Codec errors
var (
	ErrMalformed    = errors.New("malformed event")
	ErrUnknownEvent = errors.New("unknown event")
)

// Envelope is the JSON frame exchanged with clients.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is a decoded client event. Exactly one payload is set.
type Inbound struct {
	Event string
	Join  *domain.JoinRoomPayload
	Send  *domain.SendMessagePayload
}

// Decode parses one client frame.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	in := Inbound{Event: env.Event}
	switch env.Event {
	case EventJoinRoom:
		var p domain.JoinRoomPayload
		if err := decodeData(env.Data, &p); err != nil {
			return in, err
		}
		in.Join = &p
	case EventSendMessage:
		var p domain.SendMessagePayload
		if err := decodeData(env.Data, &p); err != nil {
			return in, err
		}
		in.Send = &p
	default:
		return in, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	return in, nil
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Encode builds the outbound frame for a delivered message.
func Encode(msg domain.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: EventMessage, Data: data})
}

func discardReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "other"
	}
}
