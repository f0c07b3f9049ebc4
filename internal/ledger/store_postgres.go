package ledger

import (
	"context"
	"database/sql"
	"fmt"

	id "biogate/pkg/domain"
)

// PostgresStore persists the ledger in two append-only tables. Use the
// pgx stdlib driver for the *sql.DB (see cmd/server).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema creates the ledger tables. Applied by deployments' migration
// tooling; the integration test applies it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS consent_records (
	id           BIGSERIAL PRIMARY KEY,
	user_id      TEXT        NOT NULL,
	purpose      TEXT        NOT NULL,
	granted      BOOLEAN     NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL,
	requester    TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS consent_records_user_idx ON consent_records (user_id, purpose, recorded_at);

CREATE TABLE IF NOT EXISTS access_log (
	id            BIGSERIAL PRIMARY KEY,
	user_key      TEXT        NOT NULL,
	subject       TEXT        NOT NULL,
	accessor_id   TEXT        NOT NULL,
	kind          TEXT        NOT NULL,
	data_category TEXT        NOT NULL,
	purpose       TEXT        NOT NULL,
	legal_basis   TEXT        NOT NULL,
	recorded_at   TIMESTAMPTZ NOT NULL,
	anonymized    BOOLEAN     NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS access_log_user_idx ON access_log (user_key, recorded_at);
`

// EnsureSchema applies the schema. Idempotent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendConsent(ctx context.Context, record ConsentRecord) error {
	const query = `
		INSERT INTO consent_records (user_id, purpose, granted, recorded_at, requester)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.UserID.String(),
		string(record.Purpose),
		record.Granted,
		record.Timestamp,
		record.RequesterContext,
	)
	if err != nil {
		return fmt.Errorf("insert consent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ConsentsByUser(ctx context.Context, userID id.UserID) ([]ConsentRecord, error) {
	const query = `
		SELECT user_id, purpose, granted, recorded_at, requester
		FROM consent_records
		WHERE user_id = $1
		ORDER BY recorded_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("query consent records: %w", err)
	}
	defer rows.Close()

	var records []ConsentRecord
	for rows.Next() {
		var (
			record ConsentRecord
			user   string
		)
		if err := rows.Scan(&user, &record.Purpose, &record.Granted, &record.Timestamp, &record.RequesterContext); err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}
		record.UserID = id.UserID(user)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent records: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) AppendAccess(ctx context.Context, entry AccessLogEntry) error {
	const query = `
		INSERT INTO access_log (user_key, subject, accessor_id, kind, data_category, purpose, legal_basis, recorded_at, anonymized)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.Subject,
		entry.Subject,
		entry.AccessorID,
		string(entry.Kind),
		entry.DataCategory,
		string(entry.Purpose),
		entry.LegalBasis,
		entry.Timestamp,
		entry.Anonymized,
	)
	if err != nil {
		return fmt.Errorf("insert access entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) AccessByUser(ctx context.Context, userID id.UserID) ([]AccessLogEntry, error) {
	const query = `
		SELECT subject, accessor_id, kind, data_category, purpose, legal_basis, recorded_at, anonymized
		FROM access_log
		WHERE user_key = $1
		ORDER BY recorded_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("query access log: %w", err)
	}
	defer rows.Close()

	var entries []AccessLogEntry
	for rows.Next() {
		var entry AccessLogEntry
		if err := rows.Scan(&entry.Subject, &entry.AccessorID, &entry.Kind, &entry.DataCategory, &entry.Purpose, &entry.LegalBasis, &entry.Timestamp, &entry.Anonymized); err != nil {
			return nil, fmt.Errorf("scan access entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access log: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) DeleteConsents(ctx context.Context, userID id.UserID) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM consent_records WHERE user_id = $1`, userID.String())
	if err != nil {
		return 0, fmt.Errorf("delete consent records: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted consents: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) AnonymizeAccess(ctx context.Context, userID id.UserID, pseudonym string) (int, error) {
	const query = `
		UPDATE access_log
		SET subject = $2, anonymized = TRUE
		WHERE user_key = $1 AND NOT anonymized
	`
	result, err := s.db.ExecContext(ctx, query, userID.String(), pseudonym)
	if err != nil {
		return 0, fmt.Errorf("anonymize access log: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count anonymized entries: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) CountAccess(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_log`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count access log: %w", err)
	}
	return count, nil
}
