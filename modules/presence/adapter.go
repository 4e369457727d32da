package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// PresencePort defines presence lookups available to other modules.
type PresencePort interface {
	Presence(ctx context.Context, room string) (Presence, error)
}

// presenceAdapter implements PresencePort using the service container.
type presenceAdapter struct {
	container mono.ServiceContainer
}

// NewPresenceAdapter creates a PresencePort backed by the presence-count service.
func NewPresenceAdapter(container mono.ServiceContainer) PresencePort {
	if container == nil {
		panic("presence: ServiceContainer is nil")
	}
	return &presenceAdapter{container: container}
}

// Presence returns the presence of room.
func (a *presenceAdapter) Presence(ctx context.Context, room string) (Presence, error) {
	req := PresenceRequest{Room: room}
	var resp Presence
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServicePresenceCount,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return Presence{}, fmt.Errorf("failed to get presence: %w", err)
	}
	return resp, nil
}
