package wsserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/room-relay/modules/relay"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"golang.org/x/time/rate"
)

// Options tunes per-connection behavior.
type Options struct {
	WriteTimeout   time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	RateLimit      float64
	RateBurst      int
}

// DefaultOptions returns the default connection options.
func DefaultOptions() Options {
	return Options{
		WriteTimeout:   10 * time.Second,
		PongWait:       60 * time.Second,
		PingInterval:   54 * time.Second,
		MaxMessageSize: 65536,
		RateLimit:      10,
		RateBurst:      20,
	}
}

// Handlers bridges websocket connections to the relay manager.
type Handlers struct {
	manager *relay.Manager
	opts    Options
	logger  types.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(manager *relay.Manager, opts Options, logger types.Logger) *Handlers {
	if opts.PingInterval <= 0 || opts.PingInterval >= opts.PongWait {
		opts.PingInterval = opts.PongWait * 9 / 10
	}
	return &Handlers{
		manager: manager,
		opts:    opts,
		logger:  logger,
	}
}

// HandleWebSocket serves one upgraded connection until it closes.
func (h *Handlers) HandleWebSocket(c *websocket.Conn) {
	c.SetReadLimit(h.opts.MaxMessageSize)
	_ = c.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	sink := newConnSink(c, h.opts.WriteTimeout)
	s, err := h.manager.Connect(sink)
	if err != nil {
		h.logger.Warn("Rejecting connection", "error", err)
		_ = sink.Close()
		return
	}

	var wg sync.WaitGroup
	quit := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.pingLoop(s, sink, quit)
	}()

	h.logger.Info("WebSocket connected", "sessionID", s.ID(), "remote", c.RemoteAddr().String())
	h.readLoop(c, s)

	// The connection is released once this handler returns, so wait until
	// neither the writer nor the pinger can touch it.
	h.manager.Disconnect(s)
	close(quit)
	wg.Wait()
	<-s.Done()
	<-s.Stopped()

	h.logger.Info("WebSocket disconnected", "sessionID", s.ID())
}

func (h *Handlers) readLoop(c *websocket.Conn, s *relay.Session) {
	limiter := rate.NewLimiter(rate.Limit(h.opts.RateLimit), h.opts.RateBurst)
	ctx := context.Background()

	for {
		msgType, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Debug("WebSocket read failed", "sessionID", s.ID(), "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			h.manager.Discard(s, "", "malformed", ErrMalformed)
			continue
		}
		if !limiter.Allow() {
			h.manager.Discard(s, "", "rate_limited", nil)
			continue
		}
		err = h.dispatch(ctx, s, raw)
		if errors.Is(err, relay.ErrSessionClosed) || errors.Is(err, relay.ErrManagerClosed) {
			h.logger.Debug("Stopping read loop", "sessionID", s.ID(), "error", err)
			return
		}
	}
}

// dispatch decodes one frame and hands it to the manager. Invalid frames are
// recorded and dropped without closing the connection.
func (h *Handlers) dispatch(ctx context.Context, s *relay.Session, raw []byte) error {
	in, err := Decode(raw)
	if err != nil {
		h.manager.Discard(s, in.Event, discardReason(err), err)
		return nil
	}
	switch {
	case in.Join != nil:
		return h.manager.Join(ctx, s, in.Join.Username, in.Join.Room)
	case in.Send != nil:
		return h.manager.Send(ctx, s, in.Send.Username, in.Send.Room, in.Send.Text)
	}
	return nil
}

func (h *Handlers) pingLoop(s *relay.Session, sink *connSink, quit <-chan struct{}) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-s.Done():
			return
		case <-ticker.C:
			if err := sink.ping(); err != nil {
				h.logger.Debug("Ping failed", "sessionID", s.ID(), "error", err)
				return
			}
		}
	}
}
