package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "biogate/pkg/domain"
)

type LedgerSuite struct {
	suite.Suite
	store *InMemoryStore
	svc   *Service
	now   time.Time
}

func (s *LedgerSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewInMemoryStore()
	s.svc = NewService(s.store, WithClock(func() time.Time {
		// Each call advances the clock so record ordering is observable.
		s.now = s.now.Add(time.Second)
		return s.now
	}))
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) TestCheckConsent_LatestWins() {
	ctx := context.Background()
	user := id.UserID("U1")

	granted, err := s.svc.CheckConsent(ctx, user, PurposeBiometricAuth)
	s.Require().NoError(err)
	s.False(granted, "no record means no consent")

	_, err = s.svc.RecordConsent(ctx, user, PurposeBiometricAuth, true, "")
	s.Require().NoError(err)
	granted, err = s.svc.CheckConsent(ctx, user, PurposeBiometricAuth)
	s.Require().NoError(err)
	s.True(granted)

	_, err = s.svc.RecordConsent(ctx, user, PurposeBiometricAuth, false, "")
	s.Require().NoError(err)
	granted, err = s.svc.CheckConsent(ctx, user, PurposeBiometricAuth)
	s.Require().NoError(err)
	s.False(granted, "latest record wins")

	// Other purposes are unaffected.
	granted, err = s.svc.CheckConsent(ctx, user, PurposeContentUsage)
	s.Require().NoError(err)
	s.False(granted)

	// History is retained.
	records, err := s.store.ConsentsByUser(ctx, user)
	s.Require().NoError(err)
	s.Len(records, 2)
}

func (s *LedgerSuite) TestLogAccessAndExport() {
	ctx := context.Background()
	user := id.UserID("U1")

	_, err := s.svc.RecordConsent(ctx, user, PurposeBiometricAuth, true, "Chrome on Linux")
	s.Require().NoError(err)
	_, err = s.svc.LogAccess(ctx, user, "auth-service", AccessKindRead, "biometric_template", PurposeBiometricAuth, "contract")
	s.Require().NoError(err)
	_, err = s.svc.LogAccess(ctx, user, "auth-service", AccessKindVerify, "biometric_template", PurposeBiometricAuth, "contract")
	s.Require().NoError(err)

	export, err := s.svc.Export(ctx, user)
	s.Require().NoError(err)
	s.Equal(user, export.UserID)
	s.Len(export.Consents, 1)
	s.Len(export.AccessLog, 2)
	s.Equal("U1", export.AccessLog[0].Subject)
	s.Equal("Chrome on Linux", export.Consents[0].RequesterContext)
	s.True(export.AccessLog[0].Timestamp.Before(export.AccessLog[1].Timestamp))
}

func (s *LedgerSuite) TestErase_AnonymizesButPreservesEntries() {
	ctx := context.Background()
	user := id.UserID("U1")
	other := id.UserID("U2")

	_, err := s.svc.RecordConsent(ctx, user, PurposeBiometricAuth, true, "")
	s.Require().NoError(err)
	for range 3 {
		_, err = s.svc.LogAccess(ctx, user, "auth-service", AccessKindRead, "biometric_template", PurposeBiometricAuth, "contract")
		s.Require().NoError(err)
	}
	_, err = s.svc.LogAccess(ctx, other, "auth-service", AccessKindRead, "biometric_template", PurposeBiometricAuth, "contract")
	s.Require().NoError(err)

	before, err := s.store.CountAccess(ctx)
	s.Require().NoError(err)

	confirmation, err := s.svc.Erase(ctx, user, "user requested deletion")
	s.Require().NoError(err)
	s.Equal(1, confirmation.ConsentsDeleted)
	s.Equal(3, confirmation.EntriesAnonymized)
	s.Equal("user requested deletion", confirmation.Reason)

	after, err := s.store.CountAccess(ctx)
	s.Require().NoError(err)
	s.Equal(before, after, "erasure never deletes access entries")

	export, err := s.svc.Export(ctx, user)
	s.Require().NoError(err)
	s.Empty(export.Consents)
	s.Len(export.AccessLog, 3)
	for _, entry := range export.AccessLog {
		s.Equal(ErasedSubject, entry.Subject)
		s.True(entry.Anonymized)
	}

	// The other user's entries are untouched.
	otherExport, err := s.svc.Export(ctx, other)
	s.Require().NoError(err)
	s.Len(otherExport.AccessLog, 1)
	s.Equal("U2", otherExport.AccessLog[0].Subject)
}

func (s *LedgerSuite) TestEraseIsIdempotentOnAccessEntries() {
	ctx := context.Background()
	user := id.UserID("U1")

	_, err := s.svc.LogAccess(ctx, user, "auth-service", AccessKindRead, "biometric_template", PurposeBiometricAuth, "contract")
	s.Require().NoError(err)

	first, err := s.svc.Erase(ctx, user, "request")
	s.Require().NoError(err)
	s.Equal(1, first.EntriesAnonymized)

	second, err := s.svc.Erase(ctx, user, "request repeated")
	s.Require().NoError(err)
	s.Zero(second.EntriesAnonymized)
}

// failingStore simulates a ledger that cannot persist.
type failingStore struct {
	Store
}

func (failingStore) AppendAccess(context.Context, AccessLogEntry) error {
	return errors.New("disk full")
}

func (s *LedgerSuite) TestLogAccess_FailsClosed() {
	svc := NewService(failingStore{Store: s.store})
	_, err := svc.LogAccess(context.Background(), "U1", "auth-service", AccessKindRead, "biometric_template", PurposeBiometricAuth, "contract")
	s.Require().Error(err, "a log failure must surface so the access is denied")
}
