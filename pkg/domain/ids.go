// Package domain holds the identifier and label types shared across
// features. Typed IDs keep user and session identifiers from being
// swapped at call sites.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "biogate/pkg/domain-errors"
)

// UserID is the caller-assigned subject identifier. It is an opaque string
// (national-ID style identifiers, not UUIDs) and is treated as PII.
type UserID string

// ParseUserID validates an incoming user identifier at the trust boundary.
func ParseUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "user id must not be empty")
	}
	if len(trimmed) > 128 {
		return "", dErrors.New(dErrors.CodeBadRequest, "user id too long")
	}
	return UserID(trimmed), nil
}

func (u UserID) String() string { return string(u) }

// SessionID identifies a proof-of-possession session. Random UUIDs are
// drawn from crypto/rand, which covers the unguessability requirement.
type SessionID uuid.UUID

// NewSessionID returns a fresh random session identifier.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// ParseSessionID validates an incoming session identifier.
func ParseSessionID(raw string) (SessionID, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil || parsed == uuid.Nil {
		return SessionID(uuid.Nil), dErrors.New(dErrors.CodeBadRequest, "invalid session id")
	}
	return SessionID(parsed), nil
}

func (s SessionID) String() string { return uuid.UUID(s).String() }

// IsNil reports whether the session id is the zero UUID.
func (s SessionID) IsNil() bool { return uuid.UUID(s) == uuid.Nil }
