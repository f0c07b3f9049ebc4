// Package profile tracks registered users: their encrypted biometric
// templates, possession commitments, and per-modality usage rights.
package profile

import (
	"time"

	"biogate/internal/vault"
	id "biogate/pkg/domain"
)

// ModalityRecord holds everything registration produced for one biometric
// channel. Template and ProofKeyBlob are vault ciphertexts; the raw
// biometric and its digest exist nowhere in this struct.
type ModalityRecord struct {
	Modality     id.Modality
	Template     vault.Blob
	Commitment   []byte
	ProofKeyBlob vault.Blob
	RegisteredAt time.Time
}

// Profile is the per-user registry entry. Rights gate content usage per
// modality and are zeroed on erasure.
type Profile struct {
	UserID     id.UserID
	Modalities map[id.Modality]ModalityRecord
	Consent    bool
	Rights     map[id.Modality]bool
	CreatedAt  time.Time
}

// HasRight reports whether usage of the given modality is currently
// granted.
func (p *Profile) HasRight(modality id.Modality) bool {
	return p != nil && p.Rights[modality]
}
