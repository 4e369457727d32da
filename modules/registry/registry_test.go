package registry

import (
	"fmt"
	"sync"
	"testing"

	domain "github.com/example/room-relay/domain/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conn struct{ id string }

func TestRegistry_Join(t *testing.T) {
	r := New[*conn]()
	a := &conn{id: "a"}

	if !r.Join("lobby", a) {
		t.Fatal("first Join() = false, want true")
	}
	if r.Join("lobby", a) {
		t.Error("second Join() = true, want false")
	}

	members := r.Members("lobby")
	if len(members) != 1 {
		t.Fatalf("Members() len = %d, want 1", len(members))
	}
	if members[0] != a {
		t.Errorf("Members()[0] = %v, want %v", members[0], a)
	}
	if !r.Exists("lobby") {
		t.Error("Exists(lobby) = false after join")
	}
}

func TestRegistry_MembersUnknownRoom(t *testing.T) {
	r := New[*conn]()

	members := r.Members("nowhere")
	if members == nil {
		t.Fatal("Members() returned nil for unknown room")
	}
	if len(members) != 0 {
		t.Errorf("Members() len = %d, want 0", len(members))
	}
	if r.Exists("nowhere") {
		t.Error("Members() must not create the room")
	}
}

func TestRegistry_Leave(t *testing.T) {
	tests := []struct {
		name       string
		evictEmpty bool
		wantExists bool
	}{
		{name: "empty room persists", evictEmpty: false, wantExists: true},
		{name: "empty room evicted", evictEmpty: true, wantExists: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New[*conn](WithEvictEmptyRooms(tt.evictEmpty))
			a := &conn{id: "a"}
			r.Join("lobby", a)

			if !r.Leave("lobby", a) {
				t.Fatal("Leave() = false for a member")
			}
			if r.Leave("lobby", a) {
				t.Error("second Leave() = true, want false")
			}
			if r.IsMember("lobby", a) {
				t.Error("IsMember() = true after Leave")
			}
			if got := r.Exists("lobby"); got != tt.wantExists {
				t.Errorf("Exists() = %v, want %v", got, tt.wantExists)
			}
		})
	}
}

func TestRegistry_LeaveNeverJoined(t *testing.T) {
	r := New[*conn]()
	a := &conn{id: "a"}
	b := &conn{id: "b"}
	r.Join("lobby", a)

	assert.False(t, r.Leave("lobby", b))
	assert.False(t, r.Leave("ghost", a))
	assert.Empty(t, r.LeaveAll(b))
	assert.True(t, r.IsMember("lobby", a))
}

func TestRegistry_LeaveAll(t *testing.T) {
	r := New[*conn]()
	c := &conn{id: "c"}
	other := &conn{id: "other"}

	r.Join("a", c)
	r.Join("b", c)
	r.Join("b", other)

	left := r.LeaveAll(c)
	assert.Equal(t, []string{"a", "b"}, left)

	assert.NotContains(t, r.Members("a"), c)
	assert.NotContains(t, r.Members("b"), c)
	assert.Equal(t, []*conn{other}, r.Members("b"))
	assert.Empty(t, r.RoomsOf(c))
	assert.Equal(t, []string{"b"}, r.RoomsOf(other))
}

func TestRegistry_Rooms(t *testing.T) {
	r := New[*conn]()
	r.Join("zeta", &conn{id: "1"})
	r.Join("alpha", &conn{id: "2"})
	r.Join("alpha", &conn{id: "3"})

	want := []RoomInfo{
		{Name: "alpha", Members: 2},
		{Name: "zeta", Members: 1},
	}
	assert.Equal(t, want, r.Rooms())
	assert.Equal(t, 2, r.RoomCount())
}

func TestRegistry_History(t *testing.T) {
	r := New[*conn](WithHistorySize(3))

	// No log for rooms nobody joined.
	if r.AppendMessage("lobby", domain.Message{Username: "alice", Text: "lost", Room: "lobby"}) {
		t.Error("AppendMessage() recorded a message for an unknown room")
	}

	r.Join("lobby", &conn{id: "a"})
	for i := 1; i <= 5; i++ {
		r.AppendMessage("lobby", domain.Message{Username: "alice", Text: fmt.Sprintf("m%d", i), Room: "lobby"})
	}

	history := r.History("lobby", 0)
	require.Len(t, history, 3)
	assert.Equal(t, "m3", history[0].Text)
	assert.Equal(t, "m5", history[2].Text)
	assert.False(t, history[0].Timestamp.IsZero())

	last := r.History("lobby", 2)
	require.Len(t, last, 2)
	assert.Equal(t, "m4", last[0].Text)

	assert.Empty(t, r.History("ghost", 10))
}

func TestRegistry_HistoryDisabled(t *testing.T) {
	r := New[*conn](WithHistorySize(0))
	r.Join("lobby", &conn{id: "a"})

	assert.False(t, r.AppendMessage("lobby", domain.Message{Text: "x", Room: "lobby"}))
	assert.Empty(t, r.History("lobby", 0))
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	r := New[*conn]()
	conns := make([]*conn, 50)
	for i := range conns {
		conns[i] = &conn{id: fmt.Sprintf("c%d", i)}
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *conn) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				room := fmt.Sprintf("room-%d", i%4)
				r.Join(room, c)
				r.Members(room)
			}
		}(c)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		assert.Len(t, r.Members(fmt.Sprintf("room-%d", i)), len(conns))
	}

	for _, c := range conns {
		wg.Add(1)
		go func(c *conn) {
			defer wg.Done()
			r.LeaveAll(c)
		}(c)
	}
	wg.Wait()

	for _, info := range r.Rooms() {
		assert.Zero(t, info.Members, "room %s", info.Name)
	}
}
