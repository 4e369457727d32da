package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/example/room-relay/domain/relay"
	"github.com/example/room-relay/modules/registry"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
)

// Manager errors
var (
	ErrManagerClosed = errors.New("relay manager is closed")
	ErrSessionClosed = errors.New("session is closed")
	ErrNotMember     = errors.New("session is not a member of the room")
)

// Config holds relay tuning knobs.
type Config struct {
	Limits

	// QueueSize is the per-session outbound queue depth.
	QueueSize int
	// MaxDrops is the number of consecutive dropped deliveries after which
	// a session is evicted.
	MaxDrops int
	// HistorySize bounds each room's message log; 0 disables it.
	HistorySize int
	// CommandBuffer is the depth of the dispatcher's inbound command queue.
	CommandBuffer int
	// WriteTimeout bounds a single transport write.
	WriteTimeout time.Duration

	EvictEmptyRooms   bool
	RequireMembership bool
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() Config {
	return Config{
		Limits: Limits{
			MaxUsernameLength: 50,
			MaxRoomLength:     100,
			MaxTextLength:     5000,
		},
		QueueSize:     256,
		MaxDrops:      64,
		HistorySize:   registry.DefaultHistorySize,
		CommandBuffer: 1024,
		WriteTimeout:  10 * time.Second,
	}
}

// Observer is told about relay activity. Calls happen on the dispatcher
// goroutine and must not block.
type Observer interface {
	RoomJoined(sessionID, username, room string)
	MessageRelayed(msg domain.Message, recipients int)
	SessionClosed(sessionID, username string, rooms []string, evicted bool)
}

type nopObserver struct{}

func (nopObserver) RoomJoined(string, string, string)            {}
func (nopObserver) MessageRelayed(domain.Message, int)           {}
func (nopObserver) SessionClosed(string, string, []string, bool) {}

type commandKind int

const (
	cmdJoin commandKind = iota
	cmdSend
	cmdDisconnect
)

type command struct {
	kind     commandKind
	session  *Session
	username string
	room     string
	text     string
}

// Manager owns every session and serializes all room mutations and
// fan-out through a single dispatcher goroutine, which gives each room a
// total order of joins and sends.
type Manager struct {
	cfg      Config
	registry *registry.Registry[*Session]
	commands chan command
	done     chan struct{}
	logger   types.Logger
	metrics  *Metrics
	observer Observer
	newID    func() string

	mu       sync.RWMutex
	sessions map[string]*Session
	// closing is set by closeAll; no session is registered after it.
	closing bool
}

// NewManager creates a Manager. Run must be called to start dispatching.
func NewManager(cfg Config, logger types.Logger, metrics *Metrics) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.MaxDrops <= 0 {
		cfg.MaxDrops = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if cfg.CommandBuffer < 0 {
		cfg.CommandBuffer = 0
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Manager{
		cfg: cfg,
		registry: registry.New[*Session](
			registry.WithHistorySize(cfg.HistorySize),
			registry.WithEvictEmptyRooms(cfg.EvictEmptyRooms),
		),
		commands: make(chan command, cfg.CommandBuffer),
		done:     make(chan struct{}),
		logger:   logger,
		metrics:  metrics,
		observer: nopObserver{},
		newID:    func() string { return uuid.New().String() },
		sessions: make(map[string]*Session),
	}
}

// SetObserver installs an observer. It must be called before Run.
func (m *Manager) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	m.observer = o
}

// Run processes commands until ctx is cancelled, then closes every session.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Relay dispatcher shutting down")
			m.closeAll()
			return
		case cmd := <-m.commands:
			m.dispatch(cmd)
		}
	}
}

// Wait blocks until Run has returned.
func (m *Manager) Wait() {
	<-m.done
}

// Connect creates a session for a freshly accepted transport and starts its
// writer. The session has no room membership yet.
func (m *Manager) Connect(sink Sink) (*Session, error) {
	select {
	case <-m.done:
		return nil, ErrManagerClosed
	default:
	}

	s := newSession(m.newID(), sink, m.cfg.QueueSize)

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.sessions[s.id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SessionsActive.Set(float64(count))
	go s.writeLoop(m.cfg.WriteTimeout, func(err error) {
		m.logger.Warn("Session write failed", "sessionID", s.id, "error", err)
		s.close()
		m.Disconnect(s)
	})

	m.logger.Debug("Session connected", "sessionID", s.id)
	return s, nil
}

// Join validates the payload and queues a join of s into room.
func (m *Manager) Join(ctx context.Context, s *Session, username, room string) error {
	if err := m.cfg.ValidateUsername(username); err != nil {
		return m.reject(s, "joinRoom", err)
	}
	if err := m.cfg.ValidateRoom(room); err != nil {
		return m.reject(s, "joinRoom", err)
	}
	return m.submit(ctx, command{kind: cmdJoin, session: s, username: username, room: room})
}

// Send validates the payload and queues text for fan-out to room.
func (m *Manager) Send(ctx context.Context, s *Session, username, room, text string) error {
	if err := m.cfg.ValidateUsername(username); err != nil {
		return m.reject(s, "sendMessage", err)
	}
	if err := m.cfg.ValidateRoom(room); err != nil {
		return m.reject(s, "sendMessage", err)
	}
	if err := m.cfg.ValidateText(text); err != nil {
		return m.reject(s, "sendMessage", err)
	}
	return m.submit(ctx, command{kind: cmdSend, session: s, username: username, room: room, text: text})
}

// Disconnect queues removal of s from every room. Repeated calls are no-ops.
func (m *Manager) Disconnect(s *Session) {
	// A buffered send can still succeed after Run has returned, so a closed
	// manager is checked first.
	select {
	case <-m.done:
		s.close()
		return
	default:
	}
	select {
	case m.commands <- command{kind: cmdDisconnect, session: s}:
	case <-m.done:
		s.close()
	}
}

// Discard records an inbound event the transport dropped before it reached
// the manager.
func (m *Manager) Discard(s *Session, event, reason string, err error) {
	m.metrics.Rejected.WithLabelValues(reason).Inc()
	m.logger.Warn("Dropped inbound event", "sessionID", s.id, "event", event, "reason", reason, "error", err)
}

func (m *Manager) submit(ctx context.Context, cmd command) error {
	if cmd.session.closed() {
		return ErrSessionClosed
	}
	select {
	case <-m.done:
		return ErrManagerClosed
	default:
	}
	select {
	case m.commands <- cmd:
		return nil
	case <-m.done:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) reject(s *Session, event string, err error) error {
	m.metrics.Rejected.WithLabelValues(rejectReason(err)).Inc()
	m.logger.Warn("Dropped malformed event", "sessionID", s.id, "event", event, "error", err)
	return fmt.Errorf("%s: %w", event, err)
}

func (m *Manager) dispatch(cmd command) {
	switch cmd.kind {
	case cmdJoin:
		m.handleJoin(cmd)
	case cmdSend:
		m.handleSend(cmd)
	case cmdDisconnect:
		m.handleDisconnect(cmd.session, false)
	}
}

func (m *Manager) handleJoin(cmd command) {
	s := cmd.session
	if s.gone {
		return
	}

	name := s.bindName(cmd.username)
	if name != cmd.username {
		m.logger.Debug("Ignoring username change after bind",
			"sessionID", s.id, "bound", name, "requested", cmd.username)
	}

	if !m.registry.Join(cmd.room, s) {
		m.logger.Debug("Duplicate join ignored", "sessionID", s.id, "room", cmd.room)
		return
	}
	m.metrics.Rooms.Set(float64(m.registry.RoomCount()))

	m.deliver(s, domain.Welcome(name, cmd.room))
	notice := domain.JoinNotice(name, cmd.room)
	noticed := false
	for _, member := range m.registry.Members(cmd.room) {
		if member != s {
			m.deliver(member, notice)
			noticed = true
		}
	}
	m.metrics.Messages.WithLabelValues("system").Inc()
	if noticed {
		m.metrics.Messages.WithLabelValues("system").Inc()
	}

	m.logger.Info("Session joined room", "sessionID", s.id, "username", name, "room", cmd.room)
	m.observer.RoomJoined(s.id, name, cmd.room)
}

func (m *Manager) handleSend(cmd command) {
	s := cmd.session
	if s.gone {
		return
	}

	if m.cfg.RequireMembership && !m.registry.IsMember(cmd.room, s) {
		m.metrics.Rejected.WithLabelValues(rejectReason(ErrNotMember)).Inc()
		m.logger.Warn("Dropped message from non-member", "sessionID", s.id, "room", cmd.room)
		return
	}

	sender := s.Name()
	if sender == "" {
		sender = cmd.username
	}
	msg := domain.Message{Username: sender, Text: cmd.text, Room: cmd.room}
	m.registry.AppendMessage(cmd.room, msg)

	members := m.registry.Members(cmd.room)
	if len(members) == 0 {
		m.logger.Debug("Message to empty or unknown room dropped", "sessionID", s.id, "room", cmd.room)
		return
	}
	for _, member := range members {
		m.deliver(member, msg)
	}
	m.metrics.Messages.WithLabelValues("user").Inc()
	m.observer.MessageRelayed(msg, len(members))
}

func (m *Manager) handleDisconnect(s *Session, evicted bool) {
	if s.gone {
		return
	}
	s.gone = true

	rooms := m.registry.LeaveAll(s)

	m.mu.Lock()
	delete(m.sessions, s.id)
	count := len(m.sessions)
	m.mu.Unlock()

	s.close()
	m.metrics.SessionsActive.Set(float64(count))
	m.metrics.Rooms.Set(float64(m.registry.RoomCount()))

	m.logger.Info("Session disconnected", "sessionID", s.id, "rooms", len(rooms), "evicted", evicted)
	m.observer.SessionClosed(s.id, s.Name(), rooms, evicted)
}

// deliver queues msg for one recipient. A full queue drops the message for
// that recipient only; sustained drops evict the recipient.
func (m *Manager) deliver(s *Session, msg domain.Message) {
	if s.gone {
		return
	}
	if s.enqueue(msg) {
		s.drops = 0
		m.metrics.Deliveries.Inc()
		return
	}

	s.drops++
	m.metrics.Dropped.Inc()
	if s.drops >= m.cfg.MaxDrops {
		m.metrics.Evicted.Inc()
		m.logger.Warn("Evicting slow session", "sessionID", s.id, "drops", s.drops)
		m.handleDisconnect(s, true)
	}
}

// closeAll closes every remaining session on shutdown.
func (m *Manager) closeAll() {
	m.mu.Lock()
	m.closing = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		m.registry.LeaveAll(s)
		s.gone = true
		s.close()
	}
	m.metrics.SessionsActive.Set(0)
}

// SessionCount returns the number of connected sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Rooms lists every room with its member count.
func (m *Manager) Rooms() []registry.RoomInfo {
	return m.registry.Rooms()
}

// RoomCount returns the number of room entries.
func (m *Manager) RoomCount() int {
	return m.registry.RoomCount()
}

// RoomExists reports whether the room has ever been joined (and not evicted).
func (m *Manager) RoomExists(room string) bool {
	return m.registry.Exists(room)
}

// MemberNames returns the sorted display names of the room's members.
func (m *Manager) MemberNames(room string) []string {
	members := m.registry.Members(room)
	names := make([]string, 0, len(members))
	for _, s := range members {
		names = append(names, s.Name())
	}
	sort.Strings(names)
	return names
}

// History returns up to limit entries of the room's message log.
func (m *Manager) History(room string, limit int) []domain.LoggedMessage {
	return m.registry.History(room, limit)
}
