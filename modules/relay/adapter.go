package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/example/room-relay/domain/relay"
	"github.com/example/room-relay/modules/registry"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ErrRoomNotFound is returned by RelayPort lookups for rooms that do not exist.
var ErrRoomNotFound = errors.New("room not found")

// RelayPort defines the read-only relay operations available to other modules.
type RelayPort interface {
	ListRooms(ctx context.Context) ([]registry.RoomInfo, error)
	GetRoom(ctx context.Context, room string) ([]string, error)
	GetHistory(ctx context.Context, room string, limit int) ([]domain.LoggedMessage, error)
	GetStats(ctx context.Context) (Stats, error)
}

// relayAdapter implements RelayPort using the service container.
type relayAdapter struct {
	container mono.ServiceContainer
}

// NewRelayAdapter creates a RelayPort backed by the relay module's services.
func NewRelayAdapter(container mono.ServiceContainer) RelayPort {
	if container == nil {
		panic("relay: ServiceContainer is nil")
	}
	return &relayAdapter{container: container}
}

// ListRooms returns every room with its member count.
func (a *relayAdapter) ListRooms(ctx context.Context) ([]registry.RoomInfo, error) {
	req := ListRoomsRequest{}
	var resp ListRoomsResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListRooms,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return resp.Rooms, nil
}

// GetRoom returns the display names of a room's members.
func (a *relayAdapter) GetRoom(ctx context.Context, room string) ([]string, error) {
	req := GetRoomRequest{Room: room}
	var resp GetRoomResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetRoom,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	if !resp.Found {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, room)
	}
	return resp.Members, nil
}

// GetHistory returns up to limit entries of a room's message log.
func (a *relayAdapter) GetHistory(ctx context.Context, room string, limit int) ([]domain.LoggedMessage, error) {
	req := GetHistoryRequest{Room: room, Limit: limit}
	var resp GetHistoryResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetHistory,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	if !resp.Found {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, room)
	}
	return resp.Messages, nil
}

// GetStats returns relay statistics.
func (a *relayAdapter) GetStats(ctx context.Context) (Stats, error) {
	req := GetStatsRequest{}
	var resp Stats
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetStats,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return resp, nil
}
