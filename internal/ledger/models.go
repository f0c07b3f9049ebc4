// Package ledger is the append-only consent and access record. Every read
// of protected material is logged here before it happens; if the ledger
// cannot persist the entry, the access must not proceed.
package ledger

import (
	"time"

	id "biogate/pkg/domain"
)

// Purpose labels why data is processed. Purpose binding allows selective
// consent without affecting other flows.
type Purpose string

const (
	PurposeBiometricAuth Purpose = "biometric_authentication"
	PurposeContentUsage  Purpose = "content_usage"
	PurposeDataExport    Purpose = "data_export"
)

// AccessKind classifies what an accessor did.
type AccessKind string

const (
	AccessKindRead   AccessKind = "read"
	AccessKindVerify AccessKind = "verify"
	AccessKindExport AccessKind = "export"
	AccessKindErase  AccessKind = "erase"
)

// ErasedSubject replaces the subject of anonymized access entries. The
// entries themselves survive erasure: audit trails are evidence, they are
// de-identified, never deleted.
const ErasedSubject = "erased-user"

// ConsentRecord captures one consent decision. Records are append-only;
// the current decision for a (user, purpose) pair is the latest record.
type ConsentRecord struct {
	UserID           id.UserID `json:"user_id"`
	Purpose          Purpose   `json:"purpose"`
	Granted          bool      `json:"granted"`
	Timestamp        time.Time `json:"timestamp"`
	RequesterContext string    `json:"requester_context,omitempty"`
}

// AccessLogEntry records one access to protected material. Subject starts
// as the user id and is the only field erasure may rewrite.
type AccessLogEntry struct {
	Subject      string     `json:"subject"`
	AccessorID   string     `json:"accessor_id"`
	Kind         AccessKind `json:"kind"`
	DataCategory string     `json:"data_category"`
	Purpose      Purpose    `json:"purpose"`
	LegalBasis   string     `json:"legal_basis"`
	Timestamp    time.Time  `json:"timestamp"`
	Anonymized   bool       `json:"anonymized,omitempty"`
}

// Export is the data-portability document for one user.
type Export struct {
	UserID     id.UserID        `json:"user_id"`
	ExportedAt time.Time        `json:"exported_at"`
	Consents   []ConsentRecord  `json:"consents"`
	AccessLog  []AccessLogEntry `json:"access_log"`
}

// ErasureConfirmation reports the outcome of a right-to-erasure request.
type ErasureConfirmation struct {
	UserID            id.UserID `json:"user_id"`
	ErasedAt          time.Time `json:"erased_at"`
	Reason            string    `json:"reason"`
	ConsentsDeleted   int       `json:"consents_deleted"`
	EntriesAnonymized int       `json:"entries_anonymized"`
}
