package possession

import (
	"context"

	id "biogate/pkg/domain"
)

// Store persists in-flight sessions. Implementations must make Consume
// atomic per session id: of any number of concurrent Consume calls for the
// same id, exactly one receives the session. That single primitive is what
// makes sessions single-use even under racing verify attempts and a
// concurrent sweep.
type Store interface {
	// Create saves a new session. Returns sentinel.ErrConflict when the id
	// already exists.
	Create(ctx context.Context, session *Session) error

	// Consume atomically removes and returns the session. Returns
	// sentinel.ErrNotFound when absent (never stored, already consumed, or
	// swept).
	Consume(ctx context.Context, sessionID id.SessionID) (*Session, error)

	// DeleteExpired removes sessions past expiry and reports how many went.
	// Backends with native TTL may be a no-op here.
	DeleteExpired(ctx context.Context) (int, error)
}
