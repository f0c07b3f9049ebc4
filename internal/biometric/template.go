// Package biometric derives salted one-way templates from raw biometric
// captures. Raw bytes never leave this package: callers hand them in, get a
// digest back, and the input is neither stored nor logged.
package biometric

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"
)

const (
	// SaltSize is the length of generated salts in bytes.
	SaltSize = 32

	// AlgorithmSHA256 tags templates produced by this package version.
	AlgorithmSHA256 = "SHA256"
)

// Template is the stored representation of a biometric capture. Immutable
// once created; it never contains the raw input.
type Template struct {
	Digest    []byte    `json:"digest"`
	Salt      []byte    `json:"salt"`
	Algorithm string    `json:"algorithm"`
	CreatedAt time.Time `json:"created_at"`
}

// Hash computes the salted digest of secret. A nil salt requests a fresh
// random one; passing the stored salt makes the digest reproducible for
// comparison. Empty input is hashed as-is, rejecting empty captures is the
// caller's job.
func Hash(secret, salt []byte) (digest, usedSalt []byte, err error) {
	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, fmt.Errorf("generate salt: %w", err)
		}
	}
	h := sha256.New()
	h.Write(salt)
	h.Write(secret)
	return h.Sum(nil), salt, nil
}

// NewTemplate hashes a capture under a fresh salt.
func NewTemplate(secret []byte) (Template, error) {
	digest, salt, err := Hash(secret, nil)
	if err != nil {
		return Template{}, err
	}
	return Template{
		Digest:    digest,
		Salt:      salt,
		Algorithm: AlgorithmSHA256,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Matches rehashes input under the template's salt and compares digests in
// constant time.
func (t Template) Matches(input []byte) bool {
	digest, _, err := Hash(input, t.Salt)
	if err != nil {
		return false
	}
	return hmac.Equal(digest, t.Digest)
}
