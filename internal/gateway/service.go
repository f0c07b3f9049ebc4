// Package gateway orchestrates enrollment, authentication, and the
// privacy operations. It owns the order of operations the security model
// depends on: consent before processing, access logging before access,
// decryption only after both.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"biogate/internal/biometric"
	"biogate/internal/ledger"
	"biogate/internal/platform/metrics"
	"biogate/internal/possession"
	"biogate/internal/profile"
	"biogate/internal/token"
	"biogate/internal/vault"
	id "biogate/pkg/domain"
	dErrors "biogate/pkg/domain-errors"
	"biogate/pkg/platform/sentinel"
)

const (
	defaultSessionTTL = 2 * time.Minute
	defaultTokenTTL   = 15 * time.Minute

	methodTemplate   = "template"
	methodPossession = "possession"
)

// Service wires the hasher, vault, ledger, profile registry, and
// possession verifier into the gateway operations.
type Service struct {
	profiles profile.Store
	ledger   *ledger.Service
	vault    *vault.Vault
	verifier *possession.Verifier
	tokens   *token.Service

	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
	sessionTTL time.Duration
	tokenTTL   time.Duration
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics attaches Prometheus counters. A nil metrics value is safe;
// recording becomes a no-op.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source, used by expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) { s.tokenTTL = ttl }
}

func NewService(
	profiles profile.Store,
	ledgerSvc *ledger.Service,
	v *vault.Vault,
	verifier *possession.Verifier,
	tokens *token.Service,
	opts ...Option,
) *Service {
	s := &Service{
		profiles:   profiles,
		ledger:     ledgerSvc,
		vault:      v,
		verifier:   verifier,
		tokens:     tokens,
		logger:     slog.Default(),
		tracer:     otel.Tracer("biogate/internal/gateway"),
		now:        time.Now,
		sessionTTL: defaultSessionTTL,
		tokenTTL:   defaultTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func templateAD(m id.Modality) []byte {
	return []byte("biometric-template:" + m.String())
}

func proofKeyAD(m id.Modality) []byte {
	return []byte("possession-proof-key:" + m.String())
}

// Register enrolls a user across one or more modalities. Consent is the
// gate: without it nothing is hashed, encrypted, or stored, and the denial
// itself is the only record kept.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegistrationResult, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.Register",
		trace.WithAttributes(attribute.String("user_id", req.UserID.String())))
	defer span.End()

	if len(req.Samples) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "at least one biometric sample is required")
	}

	if !req.Consent {
		if _, err := s.ledger.RecordConsent(ctx, req.UserID, ledger.PurposeBiometricAuth, false, req.RequesterContext); err != nil {
			span.RecordError(err)
			return nil, dErrors.Wrap(dErrors.CodeInternal, "record consent denial", err)
		}
		s.metrics.IncrementLedgerAppend("consent")
		return nil, dErrors.New(dErrors.CodeConsentRequired, "explicit consent is required before enrollment")
	}

	for _, purpose := range []ledger.Purpose{ledger.PurposeBiometricAuth, ledger.PurposeContentUsage} {
		if _, err := s.ledger.RecordConsent(ctx, req.UserID, purpose, true, req.RequesterContext); err != nil {
			span.RecordError(err)
			return nil, dErrors.Wrap(dErrors.CodeInternal, "record consent", err)
		}
		s.metrics.IncrementLedgerAppend("consent")
	}

	now := s.now().UTC()
	p := &profile.Profile{
		UserID:     req.UserID,
		Modalities: make(map[id.Modality]profile.ModalityRecord, len(req.Samples)),
		Consent:    true,
		Rights:     make(map[id.Modality]bool, len(req.Samples)),
		CreatedAt:  now,
	}
	result := &RegistrationResult{
		UserID:       req.UserID,
		Modalities:   make(map[id.Modality]ModalitySummary, len(req.Samples)),
		RegisteredAt: now,
	}

	for modality, sample := range req.Samples {
		record, randomness, err := s.enroll(modality, sample, now)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		p.Modalities[modality] = record
		p.Rights[modality] = true
		result.Modalities[modality] = ModalitySummary{
			TemplateBlob: record.Template,
			Commitment:   record.Commitment,
			Randomness:   randomness,
		}
	}

	if err := s.profiles.Save(ctx, p); err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(dErrors.CodeInternal, "save profile", err)
	}

	s.metrics.IncrementRegistrations()
	s.logger.InfoContext(ctx, "user registered",
		"user_id", req.UserID.String(),
		"modalities", len(req.Samples),
	)
	return result, nil
}

// enroll hashes one sample, derives its possession material, and encrypts
// both. The raw sample does not outlive this call; the returned randomness
// goes back to the enrollee and is not retained.
func (s *Service) enroll(modality id.Modality, sample []byte, now time.Time) (profile.ModalityRecord, []byte, error) {
	tpl, err := biometric.NewTemplate(sample)
	if err != nil {
		return profile.ModalityRecord{}, nil, dErrors.Wrap(dErrors.CodeInternal, "hash template", err)
	}

	commitment, randomness, err := possession.Commit(sample)
	if err != nil {
		return profile.ModalityRecord{}, nil, dErrors.Wrap(dErrors.CodeInternal, "build commitment", err)
	}
	proofKey, err := possession.DeriveProofKey(sample, randomness)
	if err != nil {
		return profile.ModalityRecord{}, nil, dErrors.Wrap(dErrors.CodeInternal, "derive proof key", err)
	}

	tplBlob, err := s.vault.EncryptJSON(tpl, templateAD(modality))
	if err != nil {
		return profile.ModalityRecord{}, nil, err
	}
	keyBlob, err := s.vault.Encrypt(proofKey, proofKeyAD(modality))
	if err != nil {
		return profile.ModalityRecord{}, nil, err
	}

	return profile.ModalityRecord{
		Modality:     modality,
		Template:     tplBlob,
		Commitment:   commitment,
		ProofKeyBlob: keyBlob,
		RegisteredAt: now,
	}, randomness, nil
}

// AuthenticateByTemplate runs the direct matching flow. The access log
// entry is written before anything is decrypted; a ledger failure aborts
// the attempt.
func (s *Service) AuthenticateByTemplate(ctx context.Context, req TemplateAuthRequest) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.AuthenticateByTemplate",
		trace.WithAttributes(
			attribute.String("user_id", req.UserID.String()),
			attribute.String("modality", req.Modality.String()),
		))
	defer span.End()

	_, blob, err := s.prepareVerification(ctx, req.UserID, req.Modality, req.AccessorID, "biometric-template")
	if err != nil {
		span.RecordError(err)
		s.metrics.IncrementAuthAttempt(methodTemplate, "error")
		return nil, err
	}
	if req.Blob != nil {
		blob = *req.Blob
	}

	var tpl biometric.Template
	if err := s.vault.DecryptJSON(blob, &tpl); err != nil {
		span.RecordError(err)
		s.metrics.IncrementAuthAttempt(methodTemplate, "error")
		return nil, err
	}

	if !tpl.Matches(req.Input) {
		s.metrics.IncrementAuthAttempt(methodTemplate, "denied")
		s.logger.InfoContext(ctx, "template authentication denied",
			"user_id", req.UserID.String(),
			"modality", req.Modality.String(),
		)
		return &AuthResult{Authenticated: false, Method: methodTemplate}, nil
	}

	accessToken, err := s.tokens.GenerateAccessToken(req.UserID, req.Modality, methodTemplate, s.tokenTTL)
	if err != nil {
		span.RecordError(err)
		s.metrics.IncrementAuthAttempt(methodTemplate, "error")
		return nil, dErrors.Wrap(dErrors.CodeInternal, "mint access token", err)
	}

	s.metrics.IncrementAuthAttempt(methodTemplate, "granted")
	s.logger.InfoContext(ctx, "template authentication granted",
		"user_id", req.UserID.String(),
		"modality", req.Modality.String(),
	)
	return &AuthResult{Authenticated: true, Method: methodTemplate, AccessToken: accessToken}, nil
}

// prepareVerification performs the gates shared by both authentication
// flows, in the order the security model requires: access log, consent,
// enrollment, usage rights.
func (s *Service) prepareVerification(ctx context.Context, userID id.UserID, modality id.Modality, accessorID, category string) (profile.ModalityRecord, vault.Blob, error) {
	if _, err := s.ledger.LogAccess(ctx, userID, accessorID, ledger.AccessKindVerify, category, ledger.PurposeBiometricAuth, "consent"); err != nil {
		return profile.ModalityRecord{}, vault.Blob{}, dErrors.Wrap(dErrors.CodeInternal, "access logging unavailable", err)
	}
	s.metrics.IncrementLedgerAppend("access")

	granted, err := s.ledger.CheckConsent(ctx, userID, ledger.PurposeBiometricAuth)
	if err != nil {
		return profile.ModalityRecord{}, vault.Blob{}, dErrors.Wrap(dErrors.CodeInternal, "check consent", err)
	}
	if !granted {
		return profile.ModalityRecord{}, vault.Blob{}, dErrors.New(dErrors.CodeConsentRequired, "consent required for biometric_authentication")
	}

	p, err := s.profiles.FindByID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return profile.ModalityRecord{}, vault.Blob{}, dErrors.New(dErrors.CodeNotFound, "unknown user")
	}
	if err != nil {
		return profile.ModalityRecord{}, vault.Blob{}, dErrors.Wrap(dErrors.CodeInternal, "load profile", err)
	}

	record, ok := p.Modalities[modality]
	if !ok {
		return profile.ModalityRecord{}, vault.Blob{}, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("modality %s not enrolled", modality))
	}
	if !p.HasRight(modality) {
		return profile.ModalityRecord{}, vault.Blob{}, dErrors.New(dErrors.CodeUnauthorizedUse, fmt.Sprintf("usage rights not granted for %s", modality))
	}
	return record, record.Template, nil
}

// StartPossessionSession opens the remote flow: the escrowed proof key is
// recovered from the vault and handed (server-side only) to the verifier
// together with a fresh challenge.
func (s *Service) StartPossessionSession(ctx context.Context, req StartPossessionRequest) (*possession.Handshake, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.StartPossessionSession",
		trace.WithAttributes(
			attribute.String("user_id", req.UserID.String()),
			attribute.String("modality", req.Modality.String()),
		))
	defer span.End()

	record, _, err := s.prepareVerification(ctx, req.UserID, req.Modality, req.AccessorID, "possession-proof-key")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	proofKey, err := s.vault.Decrypt(record.ProofKeyBlob)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.sessionTTL
	}

	session, err := s.verifier.OpenSession(ctx, req.UserID, req.Modality, record.Commitment, proofKey, ttl)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.IncrementSessionsOpened()
	s.metrics.AddActiveSessions(1)
	return &possession.Handshake{
		SessionID:        session.ID,
		Challenge:        session.Challenge,
		ExpiresInSeconds: int(ttl.Seconds()),
	}, nil
}

// CompletePossessionSession verifies the proof. Invalid proofs, expired
// sessions, and replayed session ids all come back as a false result, not
// an error; the session is spent on the first attempt either way.
func (s *Service) CompletePossessionSession(ctx context.Context, sessionID id.SessionID, proof []byte) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.CompletePossessionSession",
		trace.WithAttributes(attribute.String("session_id", sessionID.String())))
	defer span.End()

	session, err := s.verifier.Verify(ctx, sessionID, proof)
	switch {
	case err == nil:
		s.metrics.AddActiveSessions(-1)
	case dErrors.HasCode(err, dErrors.CodeProofInvalid),
		dErrors.HasCode(err, dErrors.CodeSessionExpired):
		s.metrics.AddActiveSessions(-1)
		s.metrics.IncrementAuthAttempt(methodPossession, "denied")
		return &AuthResult{Authenticated: false, Method: methodPossession}, nil
	case dErrors.HasCode(err, dErrors.CodeSessionNotFound):
		// replayed or unknown session id
		s.metrics.IncrementAuthAttempt(methodPossession, "denied")
		return &AuthResult{Authenticated: false, Method: methodPossession}, nil
	default:
		s.metrics.IncrementAuthAttempt(methodPossession, "error")
		span.RecordError(err)
		return nil, err
	}

	accessToken, err := s.tokens.GenerateAccessToken(session.UserID, session.Modality, methodPossession, s.tokenTTL)
	if err != nil {
		span.RecordError(err)
		s.metrics.IncrementAuthAttempt(methodPossession, "error")
		return nil, dErrors.Wrap(dErrors.CodeInternal, "mint access token", err)
	}

	s.metrics.IncrementAuthAttempt(methodPossession, "granted")
	s.logger.InfoContext(ctx, "possession authentication granted",
		"user_id", session.UserID.String(),
		"session_id", sessionID.String(),
	)
	return &AuthResult{Authenticated: true, Method: methodPossession, AccessToken: accessToken}, nil
}

// CheckRights reports whether the user granted usage rights for the
// modality. The lookup itself is a logged access.
func (s *Service) CheckRights(ctx context.Context, userID id.UserID, modality id.Modality, accessorID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.CheckRights")
	defer span.End()

	if _, err := s.ledger.LogAccess(ctx, userID, accessorID, ledger.AccessKindRead, "usage-rights", ledger.PurposeContentUsage, "consent"); err != nil {
		span.RecordError(err)
		return false, dErrors.Wrap(dErrors.CodeInternal, "access logging unavailable", err)
	}
	s.metrics.IncrementLedgerAppend("access")

	p, err := s.profiles.FindByID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, dErrors.New(dErrors.CodeNotFound, "unknown user")
	}
	if err != nil {
		return false, dErrors.Wrap(dErrors.CodeInternal, "load profile", err)
	}
	return p.HasRight(modality), nil
}

// ExportUserData returns every ledger record held about the user.
func (s *Service) ExportUserData(ctx context.Context, userID id.UserID, accessorID string) (ledger.Export, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.ExportUserData")
	defer span.End()

	if _, err := s.ledger.LogAccess(ctx, userID, accessorID, ledger.AccessKindExport, "ledger-export", ledger.PurposeDataExport, "data_portability"); err != nil {
		span.RecordError(err)
		return ledger.Export{}, dErrors.Wrap(dErrors.CodeInternal, "access logging unavailable", err)
	}
	s.metrics.IncrementLedgerAppend("access")

	export, err := s.ledger.Export(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return ledger.Export{}, dErrors.Wrap(dErrors.CodeInternal, "export ledger", err)
	}
	return export, nil
}

// EraseUserData is the right-to-erasure flow: the profile (templates,
// commitments, escrowed keys, rights) is deleted outright, consents are
// deleted, and access entries are anonymized in place. The erase access
// itself is logged first so it remains, anonymized, in the trail.
func (s *Service) EraseUserData(ctx context.Context, userID id.UserID, reason, accessorID string) (ledger.ErasureConfirmation, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.EraseUserData",
		trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()

	if _, err := s.ledger.LogAccess(ctx, userID, accessorID, ledger.AccessKindErase, "profile-and-ledger", ledger.PurposeDataExport, "erasure_request"); err != nil {
		span.RecordError(err)
		return ledger.ErasureConfirmation{}, dErrors.Wrap(dErrors.CodeInternal, "access logging unavailable", err)
	}
	s.metrics.IncrementLedgerAppend("access")

	if err := s.profiles.Delete(ctx, userID); err != nil {
		span.RecordError(err)
		return ledger.ErasureConfirmation{}, dErrors.Wrap(dErrors.CodeInternal, "delete profile", err)
	}

	confirmation, err := s.ledger.Erase(ctx, userID, reason)
	if err != nil {
		span.RecordError(err)
		return ledger.ErasureConfirmation{}, dErrors.Wrap(dErrors.CodeInternal, "erase ledger", err)
	}

	s.metrics.IncrementErasures()
	s.logger.InfoContext(ctx, "user data erased",
		"user_id", userID.String(),
		"consents_deleted", confirmation.ConsentsDeleted,
		"entries_anonymized", confirmation.EntriesAnonymized,
	)
	return confirmation, nil
}

// RunSessionSweeper removes expired possession sessions on an interval
// until ctx is cancelled.
func (s *Service) RunSessionSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := s.verifier.SweepExpired(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "session sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.metrics.AddSessionsSwept(removed)
				s.logger.DebugContext(ctx, "session sweep", "removed", removed)
			}
		}
	}
}
