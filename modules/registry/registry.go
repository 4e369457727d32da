// Package registry tracks which connections belong to which rooms.
//
// The registry is pure bookkeeping: it never performs I/O and never owns the
// members it stores. Callers hand it comparable handles (typically session
// pointers) and get snapshots back for fan-out.
package registry

import (
	"sort"
	"sync"
	"time"

	domain "github.com/example/room-relay/domain/relay"
)

// DefaultHistorySize is the per-room log bound used when none is configured.
const DefaultHistorySize = 100

// RoomInfo is a point-in-time summary of one room.
type RoomInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

type room[M comparable] struct {
	members map[M]struct{}
	log     []domain.LoggedMessage
}

// Registry maps room keys to member sets. All methods are safe for
// concurrent use; operations on the registry are linearizable.
type Registry[M comparable] struct {
	mu          sync.RWMutex
	rooms       map[string]*room[M]
	memberOf    map[M]map[string]struct{} // member -> rooms joined
	historySize int
	evictEmpty  bool
	now         func() time.Time
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	historySize int
	evictEmpty  bool
}

// WithHistorySize bounds each room's message log. Zero disables the log.
func WithHistorySize(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.historySize = n
	}
}

// WithEvictEmptyRooms drops a room entry once its last member leaves.
func WithEvictEmptyRooms(evict bool) Option {
	return func(o *options) {
		o.evictEmpty = evict
	}
}

// New creates an empty registry.
func New[M comparable](opts ...Option) *Registry[M] {
	o := options{historySize: DefaultHistorySize}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[M]{
		rooms:       make(map[string]*room[M]),
		memberOf:    make(map[M]map[string]struct{}),
		historySize: o.historySize,
		evictEmpty:  o.evictEmpty,
		now:         time.Now,
	}
}

// Join adds m to the named room, creating the room if needed.
// It reports whether m was newly added; joining twice is a no-op.
func (r *Registry[M]) Join(name string, m M) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		rm = &room[M]{members: make(map[M]struct{})}
		r.rooms[name] = rm
	}
	if _, exists := rm.members[m]; exists {
		return false
	}
	rm.members[m] = struct{}{}

	joined, ok := r.memberOf[m]
	if !ok {
		joined = make(map[string]struct{})
		r.memberOf[m] = joined
	}
	joined[name] = struct{}{}
	return true
}

// Leave removes m from the named room. It reports whether m was a member.
func (r *Registry[M]) Leave(name string, m M) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(name, m)
}

// LeaveAll removes m from every room it belongs to and returns those rooms,
// sorted. Cost is proportional to the number of rooms m joined.
func (r *Registry[M]) LeaveAll(m M) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.memberOf[m]
	if !ok {
		return nil
	}
	left := make([]string, 0, len(joined))
	for name := range joined {
		left = append(left, name)
	}
	for _, name := range left {
		r.leaveLocked(name, m)
	}
	sort.Strings(left)
	return left
}

func (r *Registry[M]) leaveLocked(name string, m M) bool {
	rm, ok := r.rooms[name]
	if !ok {
		return false
	}
	if _, exists := rm.members[m]; !exists {
		return false
	}
	delete(rm.members, m)

	if joined, ok := r.memberOf[m]; ok {
		delete(joined, name)
		if len(joined) == 0 {
			delete(r.memberOf, m)
		}
	}
	if r.evictEmpty && len(rm.members) == 0 {
		delete(r.rooms, name)
	}
	return true
}

// Members returns a snapshot of the room's members. Unknown rooms yield an
// empty, non-nil slice.
func (r *Registry[M]) Members(name string) []M {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[name]
	if !ok {
		return []M{}
	}
	out := make([]M, 0, len(rm.members))
	for m := range rm.members {
		out = append(out, m)
	}
	return out
}

// IsMember reports whether m currently belongs to the named room.
func (r *Registry[M]) IsMember(name string, m M) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[name]
	if !ok {
		return false
	}
	_, exists := rm.members[m]
	return exists
}

// Exists reports whether the room has an entry, even an empty one.
func (r *Registry[M]) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[name]
	return ok
}

// RoomsOf returns the rooms m belongs to, sorted.
func (r *Registry[M]) RoomsOf(m M) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := r.memberOf[m]
	out := make([]string, 0, len(joined))
	for name := range joined {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Rooms lists every room entry with its member count, sorted by name.
func (r *Registry[M]) Rooms() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RoomInfo, 0, len(r.rooms))
	for name, rm := range r.rooms {
		out = append(out, RoomInfo{Name: name, Members: len(rm.members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RoomCount returns the number of room entries.
func (r *Registry[M]) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// AppendMessage records msg in the room's bounded log. Messages for rooms
// that were never joined are discarded, as is everything when the log is
// disabled. It reports whether the message was recorded.
func (r *Registry[M]) AppendMessage(name string, msg domain.Message) bool {
	if r.historySize == 0 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return false
	}
	rm.log = append(rm.log, domain.LoggedMessage{Message: msg, Timestamp: r.now()})
	// Trim to max history
	if len(rm.log) > r.historySize {
		rm.log = append(rm.log[:0:0], rm.log[len(rm.log)-r.historySize:]...)
	}
	return true
}

// History returns up to limit of the most recent logged messages for the
// room, oldest first. A non-positive limit returns the whole log.
func (r *Registry[M]) History(name string, limit int) []domain.LoggedMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[name]
	if !ok {
		return []domain.LoggedMessage{}
	}
	if limit <= 0 || limit > len(rm.log) {
		limit = len(rm.log)
	}
	start := len(rm.log) - limit
	result := make([]domain.LoggedMessage, limit)
	copy(result, rm.log[start:])
	return result
}
