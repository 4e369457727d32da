package relay

import (
	"context"
	"sync"
	"time"

	domain "github.com/example/room-relay/domain/relay"
)

// Sink is the transport side of a session: it writes one message to the
// client and can be closed. Write is only ever called from the session's
// writer goroutine.
type Sink interface {
	Write(ctx context.Context, msg domain.Message) error
	Close() error
}

// Session is one live client connection.
type Session struct {
	id   string
	sink Sink
	out  chan domain.Message
	done chan struct{}

	// stopped is closed when the writer goroutine has closed the sink and
	// returned.
	stopped chan struct{}

	closeOnce sync.Once

	mu   sync.RWMutex
	name string

	// Owned by the dispatcher goroutine.
	drops int
	gone  bool
}

func newSession(id string, sink Sink, queueSize int) *Session {
	return &Session{
		id:      id,
		sink:    sink,
		out:     make(chan domain.Message, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Name returns the bound display name, or "" before the first join.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Done is closed once the session has been closed. The transport is closed
// afterwards by the writer goroutine.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stopped is closed once the writer goroutine has closed the sink and
// returned. After Stopped the transport is no longer touched by the relay.
func (s *Session) Stopped() <-chan struct{} {
	return s.stopped
}

// bindName sets the display name if it is still unbound and returns the
// name in effect.
func (s *Session) bindName(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.name == "" {
		s.name = name
	}
	return s.name
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// enqueue hands msg to the writer without blocking. It returns false only
// when the outbound queue is full. Messages for a closed session are
// discarded and count as handled.
func (s *Session) enqueue(msg domain.Message) bool {
	if s.closed() {
		return true
	}
	select {
	case s.out <- msg:
		return true
	default:
		return false
	}
}

// writeLoop drains the outbound queue into the sink until the session is
// closed or a write fails, then closes the sink. Sink I/O happens only on
// this goroutine so a stalled transport never blocks the dispatcher.
func (s *Session) writeLoop(timeout time.Duration, onError func(error)) {
	defer close(s.stopped)
	defer func() { _ = s.sink.Close() }()
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.out:
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			err := s.sink.Write(ctx, msg)
			cancel()
			if err != nil {
				onError(err)
				return
			}
		}
	}
}

// close signals the writer to stop. It does no transport I/O and is safe to
// call repeatedly.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
