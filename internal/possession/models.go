package possession

import (
	"time"

	id "biogate/pkg/domain"
)

// State tracks a session through the handshake. Verified, Failed and
// Expired are terminal; a session reaches exactly one of them.
type State string

const (
	StateCreated    State = "created"
	StateChallenged State = "challenged"
	StateVerified   State = "verified"
	StateFailed     State = "failed"
	StateExpired    State = "expired"
)

// Session is the verifier-side record of one handshake. ProofKey is the
// escrowed HMAC key material handed over (already decrypted) at session
// open; it is never serialized to transport shapes.
type Session struct {
	ID         id.SessionID
	UserID     id.UserID
	Modality   id.Modality
	Commitment []byte
	Challenge  []byte
	ProofKey   []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
	State      State
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Handshake is the transport shape returned to the prover when a session
// opens. The proof key stays server-side.
type Handshake struct {
	SessionID        id.SessionID
	Challenge        []byte
	ExpiresInSeconds int
}
