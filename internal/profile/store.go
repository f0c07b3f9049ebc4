package profile

import (
	"context"

	id "biogate/pkg/domain"
)

// Store persists user profiles. Update must apply its mutation atomically
// with respect to concurrent operations on the same user id.
type Store interface {
	// Save inserts or replaces a profile.
	Save(ctx context.Context, profile *Profile) error

	// FindByID returns a copy of the profile or sentinel.ErrNotFound.
	FindByID(ctx context.Context, userID id.UserID) (*Profile, error)

	// Update applies fn to the stored profile under the store's lock.
	// Returns sentinel.ErrNotFound when the user is unknown; an error from
	// fn aborts the update.
	Update(ctx context.Context, userID id.UserID, fn func(*Profile) error) error

	// Delete removes the profile entirely. Deleting an unknown user is not
	// an error.
	Delete(ctx context.Context, userID id.UserID) error
}
