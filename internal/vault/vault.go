// Package vault provides authenticated encryption for opaque blobs at rest
// (serialized biometric templates, escrowed proof keys). AES-256-GCM with a
// fresh random nonce per encryption; decryption is all-or-nothing.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	dErrors "biogate/pkg/domain-errors"
)

// KeySize is the required vault key length (AES-256).
const KeySize = 32

const gcmTagSize = 16

// Blob is an encrypted payload together with everything needed to decrypt
// and authenticate it, except the key. AssociatedData binds the blob to its
// logical purpose: a ciphertext sealed as a "biometric-template" cannot be
// replayed as a proof-key escrow.
type Blob struct {
	Ciphertext     []byte `json:"ciphertext"`
	Nonce          []byte `json:"nonce"`
	Tag            []byte `json:"tag"`
	AssociatedData []byte `json:"associated_data,omitempty"`
}

// Vault seals and opens blobs under a single injected long-lived key. Key
// lifecycle (derivation, rotation) is the caller's concern; the vault never
// generates its own key.
type Vault struct {
	aead cipher.AEAD
}

// New builds a vault around the given 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce. The 96-bit random
// nonce space makes reuse under one key negligible for the key's lifetime.
func (v *Vault) Encrypt(plaintext, associatedData []byte) (Blob, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Blob{}, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, plaintext, associatedData)

	// GCM appends the tag to the ciphertext; split it out so the wire
	// shape carries {ciphertext, nonce, tag} separately.
	split := len(sealed) - gcmTagSize
	return Blob{
		Ciphertext:     sealed[:split:split],
		Nonce:          nonce,
		Tag:            sealed[split:],
		AssociatedData: associatedData,
	}, nil
}

// Decrypt opens a blob. Any tampering with ciphertext, nonce, tag, or
// associated data yields CodeDecryptionFailed and no plaintext.
func (v *Vault) Decrypt(b Blob) ([]byte, error) {
	if len(b.Nonce) != v.aead.NonceSize() || len(b.Tag) != gcmTagSize {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "malformed blob")
	}
	sealed := make([]byte, 0, len(b.Ciphertext)+len(b.Tag))
	sealed = append(sealed, b.Ciphertext...)
	sealed = append(sealed, b.Tag...)

	plaintext, err := v.aead.Open(nil, b.Nonce, sealed, b.AssociatedData)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeDecryptionFailed, "authentication failed", err)
	}
	return plaintext, nil
}

// EncryptJSON serializes value to JSON and seals it.
func (v *Vault) EncryptJSON(value any, associatedData []byte) (Blob, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return Blob{}, fmt.Errorf("marshal plaintext: %w", err)
	}
	return v.Encrypt(plaintext, associatedData)
}

// DecryptJSON opens a blob and unmarshals the plaintext into out.
func (v *Vault) DecryptJSON(b Blob, out any) error {
	plaintext, err := v.Decrypt(b)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return dErrors.Wrap(dErrors.CodeDecryptionFailed, "malformed plaintext", err)
	}
	return nil
}
