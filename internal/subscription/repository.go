package subscription

import "context"

// Repository persists subscribers. The Registry remains the authoritative
// in-memory owner; a repository only survives restarts.
type Repository interface {
	// Load returns all persisted subscribers.
	Load(ctx context.Context) ([]*Subscriber, error)

	// Upsert inserts or replaces a subscriber.
	Upsert(ctx context.Context, sub *Subscriber) error

	// Delete removes a subscriber by ID.
	Delete(ctx context.Context, id string) error
}
