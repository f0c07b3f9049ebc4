package ledger

import (
	"context"

	id "biogate/pkg/domain"
)

// Store persists consent and access records. Both record kinds are
// append-only: no update or delete operations exist except the two erasure
// primitives, and AnonymizeAccess rewrites subjects in place without
// changing entry count.
type Store interface {
	AppendConsent(ctx context.Context, record ConsentRecord) error
	ConsentsByUser(ctx context.Context, userID id.UserID) ([]ConsentRecord, error)

	AppendAccess(ctx context.Context, entry AccessLogEntry) error
	AccessByUser(ctx context.Context, userID id.UserID) ([]AccessLogEntry, error)

	// DeleteConsents removes every consent record for the user and reports
	// how many were removed.
	DeleteConsents(ctx context.Context, userID id.UserID) (int, error)

	// AnonymizeAccess replaces the subject of the user's access entries
	// with pseudonym, preserving the entries and their count.
	AnonymizeAccess(ctx context.Context, userID id.UserID, pseudonym string) (int, error)

	// CountAccess reports the total number of access entries, anonymized
	// ones included.
	CountAccess(ctx context.Context) (int, error)
}
