// Package audit appends persistence operations to an immutable operation
// log and records per-signal attestations. The audit tables are
// INSERT-only; updates and deletes are rejected at the database layer.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// OperationType is the persistence operation being audited
type OperationType string

const (
	OpInsert OperationType = "INSERT"
	OpUpdate OperationType = "UPDATE"
	OpUpsert OperationType = "UPSERT"
	OpDelete OperationType = "DELETE"
)

// SourceType records whether the audited data came from a real provider
type SourceType string

const (
	SourceReal   SourceType = "REAL"
	SourceMock   SourceType = "MOCK"
	SourceHybrid SourceType = "HYBRID"
)

// Entry is one immutable operation-log row
type Entry struct {
	OperationType OperationType  `json:"operation_type"`
	Schema        string         `json:"schema"`
	Table         string         `json:"table"`
	TargetID      string         `json:"target_id"`
	OldValue      any            `json:"old_value,omitempty"`
	NewValue      any            `json:"new_value,omitempty"`
	AttestationID string         `json:"attestation_id,omitempty"`
	SourceType    SourceType     `json:"source_type"`
	PerformedBy   string         `json:"performed_by"`
	Reason        string         `json:"reason"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	LoggedAt      time.Time      `json:"logged_at"`
}

// Logger appends audit entries
type Logger interface {
	Record(ctx context.Context, entry Entry) error
}

// SQLLogger writes the operation log through sqlx. In strict mode a
// failed append is returned to the caller; otherwise audit failures are
// logged at high severity and swallowed so they never block the write
// they describe.
type SQLLogger struct {
	db     *sqlx.DB
	strict bool
	now    func() time.Time
}

// NewSQLLogger builds the audit logger. strict should be set in
// development environments only.
func NewSQLLogger(db *sqlx.DB, strict bool) *SQLLogger {
	return &SQLLogger{db: db, strict: strict, now: time.Now}
}

// Record appends one entry to the operation log
func (l *SQLLogger) Record(ctx context.Context, entry Entry) error {
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = l.now().UTC()
	}

	err := l.insert(ctx, entry)
	if err == nil {
		return nil
	}

	log.Error().Err(err).
		Str("operation", string(entry.OperationType)).
		Str("table", entry.Table).
		Str("target_id", entry.TargetID).
		Msg("Audit append failed")

	if l.strict {
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

func (l *SQLLogger) insert(ctx context.Context, entry Entry) error {
	oldJSON, err := marshalNullable(entry.OldValue)
	if err != nil {
		return fmt.Errorf("marshal old value: %w", err)
	}
	newJSON, err := marshalNullable(entry.NewValue)
	if err != nil {
		return fmt.Errorf("marshal new value: %w", err)
	}
	metaJSON, err := marshalNullable(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO audit_log (operation_type, schema_name, table_name, target_id, old_value, new_value, attestation_id, source_type, performed_by, reason, metadata, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = l.db.ExecContext(ctx, query,
		entry.OperationType, entry.Schema, entry.Table, entry.TargetID,
		oldJSON, newJSON, nullable(entry.AttestationID), entry.SourceType,
		entry.PerformedBy, entry.Reason, metaJSON, entry.LoggedAt)
	return err
}

func marshalNullable(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// NopLogger discards audit entries; used when no database is configured
type NopLogger struct{}

func (NopLogger) Record(context.Context, Entry) error { return nil }
