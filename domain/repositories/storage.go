package repositories

import (
	"context"
	"net/http"

	"github.com/satriahrh/peacepal/server/domain/entities"
)

// MessageStore is an append-only per-user message collection with a live query
type MessageStore interface {
	// Append persists a finalized message for the user
	Append(ctx context.Context, userID string, message entities.Message) error
	// Watch delivers the full set of the user's messages every time it changes.
	// Snapshot order is not guaranteed. The returned func stops the subscription.
	Watch(ctx context.Context, userID string, onSnapshot func([]entities.Message), onError func(error)) (func(), error)
}

// IdentityProvider yields the stable opaque identifier of the caller
type IdentityProvider interface {
	// UserID returns the caller's id, or an error when the identity is not ready
	UserID(r *http.Request) (string, error)
}
