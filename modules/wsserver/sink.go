package wsserver

import (
	"context"
	"sync"
	"time"

	domain "github.com/example/room-relay/domain/relay"
	"github.com/gofiber/contrib/websocket"
)

// conn is the subset of *websocket.Conn used for writing.
type conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// connSink adapts a websocket connection to relay.Sink.
type connSink struct {
	conn         conn
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func newConnSink(c conn, writeTimeout time.Duration) *connSink {
	return &connSink{conn: c, writeTimeout: writeTimeout}
}

// Write sends one message frame, bounded by the context deadline.
func (s *connSink) Write(ctx context.Context, msg domain.Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.writeTimeout)
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close sends a close frame and closes the connection. The session writer
// calls it after its last write has returned.
func (s *connSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.writeTimeout),
		)
		err = s.conn.Close()
	})
	return err
}

// ping sends a keepalive ping.
func (s *connSink) ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
}
