// Package possession implements the commitment / challenge / proof handshake
// that lets a holder of a secret authenticate without sending the secret.
//
// Prover side (this file) is pure: no session state, no I/O. The flow is
//
//	commitment, randomness := Commit(secret)        // registration time
//	proof, _ := Prove(secret, challenge, randomness) // per login
//
// The proof is an HMAC of the challenge under a key derived from
// (secret, randomness). The verifier holds that key in encrypted escrow, so
// it can check proofs without ever seeing the secret during login. This is
// the strongest scheme symmetric primitives allow; it is not algebraic
// zero-knowledge, and a party holding the escrow key could itself produce
// proofs.
package possession

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// RandomnessSize is the per-commitment randomness length in bytes.
	RandomnessSize = 32

	// ProofKeySize is the derived HMAC key length in bytes.
	ProofKeySize = 32

	hkdfSalt    = "biogate:possession:v1"
	hkdfInfoKey = "proof-key:v1"
)

// Commit binds the prover to secret without revealing it. The returned
// randomness is needed to produce proofs later; the prover keeps it (or the
// server escrows the derived proof key encrypted in the vault).
func Commit(secret []byte) (commitment, randomness []byte, err error) {
	randomness = make([]byte, RandomnessSize)
	if _, err := rand.Read(randomness); err != nil {
		return nil, nil, fmt.Errorf("generate randomness: %w", err)
	}
	return commitmentOf(secret, randomness), randomness, nil
}

// VerifyCommitment reports whether commitment opens to (secret, randomness).
func VerifyCommitment(secret, randomness, commitment []byte) bool {
	return hmac.Equal(commitmentOf(secret, randomness), commitment)
}

func commitmentOf(secret, randomness []byte) []byte {
	h := sha256.New()
	h.Write(secret)
	h.Write(randomness)
	return h.Sum(nil)
}

// DeriveProofKey expands (secret, randomness) into the HMAC key used for
// proofs. HKDF with versioned salt/info strings so future scheme revisions
// cannot collide with this one.
func DeriveProofKey(secret, randomness []byte) ([]byte, error) {
	ikm := make([]byte, 0, len(secret)+len(randomness))
	ikm = append(ikm, secret...)
	ikm = append(ikm, randomness...)

	reader := hkdf.New(sha256.New, ikm, []byte(hkdfSalt), []byte(hkdfInfoKey))
	key := make([]byte, ProofKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive proof key: %w", err)
	}
	return key, nil
}

// Prove answers a verifier challenge. The proof is bound to this exact
// challenge; it verifies against no other session.
func Prove(secret, challenge, randomness []byte) ([]byte, error) {
	key, err := DeriveProofKey(secret, randomness)
	if err != nil {
		return nil, err
	}
	return ProveWithKey(key, challenge), nil
}

// ProveWithKey computes the proof directly from a derived proof key. The
// verifier uses it to recompute the expected proof from escrow.
func ProveWithKey(proofKey, challenge []byte) []byte {
	mac := hmac.New(sha256.New, proofKey)
	mac.Write(challenge)
	return mac.Sum(nil)
}
