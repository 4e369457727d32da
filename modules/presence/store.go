// Package presence tracks which sessions are in which rooms in Redis so that
// presence survives outside the relay process and can be queried cheaply.
package presence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const usernameField = "username"

// joinScript adds a session to a room unless the session has already been
// closed. Join and close events are consumed independently, so a late join
// must not resurrect a session whose close was already recorded.
//
// KEYS: room set, session hash, closed marker
// ARGV: session id, username, ttl seconds, username field
var joinScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 1 then
	return 0
end
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[3])
redis.call('HSET', KEYS[2], ARGV[4], ARGV[2])
redis.call('EXPIRE', KEYS[2], ARGV[3])
return 1
`)

// Store keeps presence sets in Redis.
//
// Keys:
//
//	<prefix>presence:<room>  set of session ids
//	<prefix>session:<id>     hash {username}
//	<prefix>closed:<id>      marker for a closed session, kept for the ttl
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore creates a Store over an existing client.
func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) roomKey(room string) string {
	return s.prefix + "presence:" + room
}

func (s *Store) sessionKey(id string) string {
	return s.prefix + "session:" + id
}

func (s *Store) closedKey(id string) string {
	return s.prefix + "closed:" + id
}

func (s *Store) ttlSeconds() int64 {
	secs := int64(s.ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Join records sessionID as present in room. It is a no-op for a session
// that Leave has already closed.
func (s *Store) Join(ctx context.Context, sessionID, username, room string) error {
	keys := []string{s.roomKey(room), s.sessionKey(sessionID), s.closedKey(sessionID)}
	err := joinScript.Run(ctx, s.client, keys, sessionID, username, s.ttlSeconds(), usernameField).Err()
	if err != nil {
		return fmt.Errorf("presence join: %w", err)
	}
	return nil
}

// Leave removes sessionID from every listed room, forgets the session and
// marks it closed so that a join delivered afterwards is ignored.
func (s *Store) Leave(ctx context.Context, sessionID string, rooms []string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.closedKey(sessionID), 1, time.Duration(s.ttlSeconds())*time.Second)
		for _, room := range rooms {
			pipe.SRem(ctx, s.roomKey(room), sessionID)
		}
		pipe.Del(ctx, s.sessionKey(sessionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence leave: %w", err)
	}
	return nil
}

// Count returns the number of sessions present in room.
func (s *Store) Count(ctx context.Context, room string) (int64, error) {
	n, err := s.client.SCard(ctx, s.roomKey(room)).Result()
	if err != nil {
		return 0, fmt.Errorf("presence count: %w", err)
	}
	return n, nil
}

// Usernames returns the sorted display names of the sessions in room.
// Sessions whose hash has expired are skipped.
func (s *Store) Usernames(ctx context.Context, room string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.roomKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence members: %w", err)
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	cmds := make([]*redis.StringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGet(ctx, s.sessionKey(id), usernameField)
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("presence usernames: %w", err)
	}

	names := make([]string, 0, len(ids))
	for _, cmd := range cmds {
		name, err := cmd.Result()
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
