package possession

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	id "biogate/pkg/domain"
	dErrors "biogate/pkg/domain-errors"
	"biogate/pkg/platform/sentinel"
)

// ChallengeSize is the verifier challenge length in bytes.
const ChallengeSize = 32

// Verifier runs the server side of the handshake. It holds sessions in an
// injected store so tests run against isolated in-memory instances and
// deployments can share state through Redis.
type Verifier struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

// WithClock overrides the time source, used by expiry tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func NewVerifier(store Store, opts ...Option) *Verifier {
	v := &Verifier{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// OpenSession registers a commitment and issues a fresh challenge. proofKey
// is the escrowed key material the caller recovered from the vault; the
// verifier keeps it only for the session's lifetime.
func (v *Verifier) OpenSession(ctx context.Context, userID id.UserID, modality id.Modality, commitment, proofKey []byte, ttl time.Duration) (*Session, error) {
	if len(commitment) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "commitment must not be empty")
	}
	if len(proofKey) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "proof key must not be empty")
	}
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "session ttl must be positive")
	}

	challenge := make([]byte, ChallengeSize)
	if _, err := rand.Read(challenge); err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}

	now := v.now()
	session := &Session{
		ID:         id.NewSessionID(),
		UserID:     userID,
		Modality:   modality,
		Commitment: commitment,
		Challenge:  challenge,
		ProofKey:   proofKey,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		State:      StateChallenged,
	}
	if err := v.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	v.logger.DebugContext(ctx, "possession session opened",
		"session_id", session.ID.String(),
		"expires_in", ttl.Seconds(),
	)
	return session, nil
}

// Verify consumes the session on first attempt, success or failure, so a
// replayed session id always fails. Returns the terminal session together
// with a nil error only on a valid proof.
func (v *Verifier) Verify(ctx context.Context, sessionID id.SessionID, proof []byte) (*Session, error) {
	session, err := v.store.Consume(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeSessionNotFound, "unknown or already used session")
	}
	if err != nil {
		return nil, fmt.Errorf("consume session: %w", err)
	}

	if session.Expired(v.now()) {
		session.State = StateExpired
		v.logger.InfoContext(ctx, "possession session expired at verify",
			"session_id", sessionID.String(),
		)
		return nil, dErrors.New(dErrors.CodeSessionExpired, "session expired")
	}

	expected := ProveWithKey(session.ProofKey, session.Challenge)
	if !hmac.Equal(expected, proof) {
		session.State = StateFailed
		v.logger.InfoContext(ctx, "possession proof rejected",
			"session_id", sessionID.String(),
		)
		return nil, dErrors.New(dErrors.CodeProofInvalid, "proof does not match challenge")
	}

	session.State = StateVerified
	v.logger.InfoContext(ctx, "possession proof verified",
		"session_id", sessionID.String(),
	)
	return session, nil
}

// SweepExpired removes sessions past expiry. Lazy expiry at Verify already
// guarantees correctness; the sweep only reclaims memory for sessions whose
// provers never came back.
func (v *Verifier) SweepExpired(ctx context.Context) (int, error) {
	return v.store.DeleteExpired(ctx)
}
