package gateway

import (
	"time"

	"biogate/internal/vault"
	id "biogate/pkg/domain"
)

// RegisterRequest enrolls a user. Samples maps each modality to the raw
// captured biometric bytes; they are hashed and discarded, never stored.
type RegisterRequest struct {
	UserID           id.UserID
	Consent          bool
	RequesterContext string
	Samples          map[id.Modality][]byte
}

// ModalitySummary is the per-modality outcome of enrollment. TemplateBlob
// is the vault-encrypted template for callers holding their own storage.
// Randomness is the prover's half of the possession commitment; the client
// must keep it to answer challenges later, the server does not retain it.
type ModalitySummary struct {
	TemplateBlob vault.Blob
	Commitment   []byte
	Randomness   []byte
}

// RegistrationResult summarizes a completed enrollment.
type RegistrationResult struct {
	UserID       id.UserID
	Modalities   map[id.Modality]ModalitySummary
	RegisteredAt time.Time
}

// TemplateAuthRequest is a direct template-matching attempt. Blob
// optionally overrides the stored template, for callers that kept the
// encrypted blob from registration.
type TemplateAuthRequest struct {
	UserID     id.UserID
	Modality   id.Modality
	Input      []byte
	Blob       *vault.Blob
	AccessorID string
}

// StartPossessionRequest opens a remote challenge/response session.
type StartPossessionRequest struct {
	UserID     id.UserID
	Modality   id.Modality
	TTL        time.Duration
	AccessorID string
}

// AuthResult is the outcome of either authentication flow. AccessToken is
// set only when Authenticated is true.
type AuthResult struct {
	Authenticated bool
	Method        string
	AccessToken   string
}
