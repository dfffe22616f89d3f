package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"consentry/internal/consent"
	"consentry/pkg/domain"
	"consentry/pkg/platform/sentinel"
)

// PostgresStore persists each record as a single JSONB row. Party columns
// are duplicated out of the document for indexed lookups; the document is
// the source of truth.
type PostgresStore struct {
	db executor
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx binds the store to an open transaction so a service-level
// runner can group writes with audit outbox entries.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{db: tx}
}

// Schema is applied by migrations; kept here for reference and tests.
const Schema = `
CREATE TABLE IF NOT EXISTS consent_records (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	controller TEXT NOT NULL,
	seq        BIGINT NOT NULL,
	state      JSONB NOT NULL,
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS consent_records_subject_idx ON consent_records (subject);
CREATE INDEX IF NOT EXISTS consent_records_controller_idx ON consent_records (controller);
`

func (s *PostgresStore) Save(ctx context.Context, record *consent.CollectionConsent) error {
	state, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal consent record: %w", err)
	}
	query := `
		INSERT INTO consent_records (id, subject, controller, seq, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Subject.String(),
		record.Controller.String(),
		record.Seq,
		state,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert consent record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert consent record: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*consent.CollectionConsent, error) {
	var state []byte
	query := `SELECT state FROM consent_records WHERE id = $1`
	err := s.db.QueryRowContext(ctx, query, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select consent record: %w", err)
	}
	return unmarshalRecord(state)
}

func (s *PostgresStore) Update(ctx context.Context, record *consent.CollectionConsent) error {
	state, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal consent record: %w", err)
	}
	query := `
		UPDATE consent_records
		SET seq = $2, state = $3
		WHERE id = $1 AND seq = $2 - 1
	`
	res, err := s.db.ExecContext(ctx, query, record.ID, record.Seq, state)
	if err != nil {
		return fmt.Errorf("update consent record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update consent record: %w", err)
	}
	if rows == 0 {
		// Distinguish a missing row from a sequence race for the caller.
		var exists bool
		check := `SELECT EXISTS (SELECT 1 FROM consent_records WHERE id = $1)`
		if err := s.db.QueryRowContext(ctx, check, record.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check consent record: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject domain.Identity) ([]*consent.CollectionConsent, error) {
	query := `SELECT state FROM consent_records WHERE subject = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, subject.String())
	if err != nil {
		return nil, fmt.Errorf("list consent records: %w", err)
	}
	defer rows.Close()

	var out []*consent.CollectionConsent
	for rows.Next() {
		var state []byte
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}
		record, err := unmarshalRecord(state)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list consent records: %w", err)
	}
	return out, nil
}

func unmarshalRecord(state []byte) (*consent.CollectionConsent, error) {
	var record consent.CollectionConsent
	if err := json.Unmarshal(state, &record); err != nil {
		return nil, fmt.Errorf("unmarshal consent record: %w", err)
	}
	if record.Processing == nil {
		record.Processing = make(map[domain.Identity]*consent.ProcessingConsent)
	}
	return &record, nil
}
