package presence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/example/room-relay/events"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requires Redis running on localhost:6379
const testRedisAddr = "localhost:6379"

type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any)         {}
func (m *mockLogger) Info(_ string, _ ...any)          {}
func (m *mockLogger) Warn(_ string, _ ...any)          {}
func (m *mockLogger) Error(_ string, _ ...any)         {}
func (m *mockLogger) With(_ ...any) types.Logger       { return m }
func (m *mockLogger) WithModule(_ string) types.Logger { return m }
func (m *mockLogger) WithError(_ error) types.Logger   { return m }

func setupTestModule(t *testing.T) *Module {
	t.Helper()

	prefix := fmt.Sprintf("relaytest:%d:", time.Now().UnixNano())
	m := NewModule(Config{
		Addr:   testRedisAddr,
		Prefix: prefix,
		TTL:    time.Minute,
	}, &mockLogger{})

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		_ = m.client.Close()
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}

	t.Cleanup(func() {
		cleanupKeys(ctx, m.client, prefix+"*")
		_ = m.Stop(ctx)
	})
	return m
}

func cleanupKeys(ctx context.Context, client *redis.Client, pattern string) {
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func TestStore_JoinAndLeave(t *testing.T) {
	m := setupTestModule(t)
	s := m.Store()
	ctx := context.Background()

	require.NoError(t, s.Join(ctx, "s1", "alice", "lobby"))
	require.NoError(t, s.Join(ctx, "s2", "bob", "lobby"))
	require.NoError(t, s.Join(ctx, "s2", "bob", "games"))
	// duplicate join leaves the set unchanged
	require.NoError(t, s.Join(ctx, "s1", "alice", "lobby"))

	n, err := s.Count(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	names, err := s.Usernames(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)

	require.NoError(t, s.Leave(ctx, "s2", []string{"lobby", "games"}))

	names, err = s.Usernames(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names)

	n, err = s.Count(ctx, "games")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_JoinAfterLeaveIsIgnored(t *testing.T) {
	m := setupTestModule(t)
	s := m.Store()
	ctx := context.Background()

	// the close event for s1 was consumed before its join event
	require.NoError(t, s.Leave(ctx, "s1", nil))
	require.NoError(t, s.Join(ctx, "s1", "alice", "lobby"))

	n, err := s.Count(ctx, "lobby")
	require.NoError(t, err)
	assert.Zero(t, n)

	names, err := s.Usernames(ctx, "lobby")
	require.NoError(t, err)
	assert.Empty(t, names)

	// other sessions are unaffected
	require.NoError(t, s.Join(ctx, "s2", "bob", "lobby"))
	n, err = s.Count(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestModule_ClosedBeforeJoinedEvents(t *testing.T) {
	m := setupTestModule(t)
	ctx := context.Background()

	require.NoError(t, m.handleSessionClosed(ctx, events.SessionClosedEvent{
		SessionID: "s9", Username: "dave", Rooms: []string{"lobby"},
	}, nil))
	require.NoError(t, m.handleRoomJoined(ctx, events.RoomJoinedEvent{
		SessionID: "s9", Username: "dave", Room: "lobby",
	}, nil))

	p, err := m.handlePresence(ctx, PresenceRequest{Room: "lobby"}, nil)
	require.NoError(t, err)
	assert.Zero(t, p.Count)
}

func TestStore_UnknownRoom(t *testing.T) {
	m := setupTestModule(t)

	names, err := m.Store().Usernames(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.NotNil(t, names)
}

func TestModule_EventHandlers(t *testing.T) {
	m := setupTestModule(t)
	ctx := context.Background()

	require.NoError(t, m.handleRoomJoined(ctx, events.RoomJoinedEvent{
		SessionID: "s1", Username: "carol", Room: "a",
	}, nil))
	require.NoError(t, m.handleRoomJoined(ctx, events.RoomJoinedEvent{
		SessionID: "s1", Username: "carol", Room: "b",
	}, nil))

	p, err := m.handlePresence(ctx, PresenceRequest{Room: "a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Count)
	assert.Equal(t, []string{"carol"}, p.Usernames)

	require.NoError(t, m.handleSessionClosed(ctx, events.SessionClosedEvent{
		SessionID: "s1", Username: "carol", Rooms: []string{"a", "b"},
	}, nil))

	for _, room := range []string{"a", "b"} {
		p, err := m.handlePresence(ctx, PresenceRequest{Room: room}, nil)
		require.NoError(t, err)
		assert.Zero(t, p.Count)
	}
}

func TestModule_Health(t *testing.T) {
	m := setupTestModule(t)
	status := m.Health(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, testRedisAddr, status.Details["redis"])
}

func TestModule_HandlersSwallowRedisErrors(t *testing.T) {
	m := NewModule(Config{Addr: "127.0.0.1:1", Prefix: "x:", TTL: time.Minute}, &mockLogger{})
	defer m.client.Close()
	ctx := context.Background()

	assert.NoError(t, m.handleRoomJoined(ctx, events.RoomJoinedEvent{SessionID: "s", Username: "u", Room: "r"}, nil))
	assert.NoError(t, m.handleSessionClosed(ctx, events.SessionClosedEvent{SessionID: "s", Rooms: []string{"r"}}, nil))
	assert.False(t, m.Health(ctx).Healthy)
}
