package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/example/room-relay/domain/relay"
	"github.com/gofiber/contrib/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
		check   func(t *testing.T, in Inbound)
	}{
		{
			name: "join room",
			raw:  `{"event":"joinRoom","data":{"username":"alice","room":"lobby"}}`,
			check: func(t *testing.T, in Inbound) {
				require.NotNil(t, in.Join)
				assert.Nil(t, in.Send)
				assert.Equal(t, "alice", in.Join.Username)
				assert.Equal(t, "lobby", in.Join.Room)
			},
		},
		{
			name: "send message",
			raw:  `{"event":"sendMessage","data":{"username":"bob","room":"lobby","text":"hi"}}`,
			check: func(t *testing.T, in Inbound) {
				require.NotNil(t, in.Send)
				assert.Equal(t, "bob", in.Send.Username)
				assert.Equal(t, "lobby", in.Send.Room)
				assert.Equal(t, "hi", in.Send.Text)
			},
		},
		{
			name: "missing fields decode empty",
			raw:  `{"event":"joinRoom","data":{}}`,
			check: func(t *testing.T, in Inbound) {
				require.NotNil(t, in.Join)
				assert.Empty(t, in.Join.Username)
			},
		},
		{name: "invalid json", raw: `{"event":`, wantErr: ErrMalformed},
		{name: "missing data", raw: `{"event":"sendMessage"}`, wantErr: ErrMalformed},
		{name: "wrong field type", raw: `{"event":"sendMessage","data":{"text":5}}`, wantErr: ErrMalformed},
		{name: "unknown event", raw: `{"event":"leaveRoom","data":{}}`, wantErr: ErrUnknownEvent},
		{name: "no event", raw: `{"data":{}}`, wantErr: ErrUnknownEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode([]byte(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, in)
		})
	}
}

func TestEncode(t *testing.T) {
	frame, err := Encode(domain.Welcome("alice", "lobby"))
	require.NoError(t, err)

	var env struct {
		Event string         `json:"event"`
		Data  domain.Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, EventMessage, env.Event)
	assert.Equal(t, domain.SystemSender, env.Data.Username)
	assert.Equal(t, "Welcome, alice! You joined room: lobby", env.Data.Text)
	assert.Equal(t, "lobby", env.Data.Room)
}

func TestDiscardReason(t *testing.T) {
	_, err := Decode([]byte(`nope`))
	assert.Equal(t, "malformed", discardReason(err))
	_, err = Decode([]byte(`{"event":"x","data":{}}`))
	assert.Equal(t, "unknown_event", discardReason(err))
	assert.Equal(t, "other", discardReason(errors.New("boom")))
}

type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	controls []int
	deadline time.Time
	closed   int
	writeErr error
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadline = t
	return nil
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, messageType)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func TestConnSink_Write(t *testing.T) {
	fc := &fakeConn{}
	sink := newConnSink(fc, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	want, _ := ctx.Deadline()

	require.NoError(t, sink.Write(ctx, domain.Message{Username: "bob", Text: "hi", Room: "r"}))
	require.Len(t, fc.frames, 1)
	assert.JSONEq(t, `{"event":"message","data":{"username":"bob","text":"hi","room":"r"}}`, string(fc.frames[0]))
	assert.Equal(t, want, fc.deadline)

	fc.writeErr = errors.New("broken pipe")
	assert.Error(t, sink.Write(context.Background(), domain.Message{Text: "x"}))
}

func TestConnSink_CloseOnce(t *testing.T) {
	fc := &fakeConn{}
	sink := newConnSink(fc, time.Second)

	require.NoError(t, sink.ping())
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	assert.Equal(t, 1, fc.closed)
	assert.Equal(t, []int{websocket.PingMessage, websocket.CloseMessage}, fc.controls)
}
