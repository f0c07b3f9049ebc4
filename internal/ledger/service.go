package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	id "biogate/pkg/domain"
)

// Service wraps the store with ledger semantics: appends never overwrite,
// consent checks resolve latest-wins, and LogAccess propagates persistence
// failures so callers fail closed.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordConsent appends a consent decision. It never overwrites earlier
// decisions; history is retained for audit.
func (s *Service) RecordConsent(ctx context.Context, userID id.UserID, purpose Purpose, granted bool, requesterContext string) (ConsentRecord, error) {
	record := ConsentRecord{
		UserID:           userID,
		Purpose:          purpose,
		Granted:          granted,
		Timestamp:        s.now().UTC(),
		RequesterContext: requesterContext,
	}
	if err := s.store.AppendConsent(ctx, record); err != nil {
		return ConsentRecord{}, fmt.Errorf("append consent: %w", err)
	}
	s.logger.InfoContext(ctx, "consent recorded",
		"user_id", userID.String(),
		"purpose", string(purpose),
		"granted", granted,
	)
	return record, nil
}

// CheckConsent returns the granted value of the most recent record for the
// (user, purpose) pair, or false when no record exists.
func (s *Service) CheckConsent(ctx context.Context, userID id.UserID, purpose Purpose) (bool, error) {
	records, err := s.store.ConsentsByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list consents: %w", err)
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Purpose == purpose {
			return records[i].Granted, nil
		}
	}
	return false, nil
}

// LogAccess appends an access entry. A returned error means the entry was
// not persisted and the access it describes must not proceed.
func (s *Service) LogAccess(ctx context.Context, userID id.UserID, accessorID string, kind AccessKind, category string, purpose Purpose, legalBasis string) (AccessLogEntry, error) {
	entry := AccessLogEntry{
		Subject:      userID.String(),
		AccessorID:   accessorID,
		Kind:         kind,
		DataCategory: category,
		Purpose:      purpose,
		LegalBasis:   legalBasis,
		Timestamp:    s.now().UTC(),
	}
	if err := s.store.AppendAccess(ctx, entry); err != nil {
		return AccessLogEntry{}, fmt.Errorf("append access entry: %w", err)
	}
	s.logger.InfoContext(ctx, "access logged",
		"user_id", userID.String(),
		"accessor_id", accessorID,
		"kind", string(kind),
		"category", category,
	)
	return entry, nil
}

// Export assembles the data-portability document for a user.
func (s *Service) Export(ctx context.Context, userID id.UserID) (Export, error) {
	consents, err := s.store.ConsentsByUser(ctx, userID)
	if err != nil {
		return Export{}, fmt.Errorf("list consents: %w", err)
	}
	access, err := s.store.AccessByUser(ctx, userID)
	if err != nil {
		return Export{}, fmt.Errorf("list access log: %w", err)
	}
	return Export{
		UserID:     userID,
		ExportedAt: s.now().UTC(),
		Consents:   consents,
		AccessLog:  access,
	}, nil
}

// Erase removes the user's consent records and de-identifies their access
// entries. The entries themselves are preserved.
func (s *Service) Erase(ctx context.Context, userID id.UserID, reason string) (ErasureConfirmation, error) {
	deleted, err := s.store.DeleteConsents(ctx, userID)
	if err != nil {
		return ErasureConfirmation{}, fmt.Errorf("delete consents: %w", err)
	}
	anonymized, err := s.store.AnonymizeAccess(ctx, userID, ErasedSubject)
	if err != nil {
		return ErasureConfirmation{}, fmt.Errorf("anonymize access log: %w", err)
	}
	s.logger.InfoContext(ctx, "user data erased",
		"user_id", userID.String(),
		"reason", reason,
		"consents_deleted", deleted,
		"entries_anonymized", anonymized,
	)
	return ErasureConfirmation{
		UserID:            userID,
		ErasedAt:          s.now().UTC(),
		Reason:            reason,
		ConsentsDeleted:   deleted,
		EntriesAnonymized: anonymized,
	}, nil
}
