package postgres

import (
	_ "embed"

	"github.com/jmoiron/sqlx"

	"github.com/omen-systems/omen/internal/domain"
)

//go:embed schema.sql
var schemaDDL string

// EnsureSchema applies the embedded DDL: signal, attestation, and audit
// tables plus the trigger keeping audit_log append-only.
func EnsureSchema(db *sqlx.DB) error {
	if _, err := db.Exec(schemaDDL); err != nil {
		return domain.E(domain.KindPersistence, err)
	}
	return nil
}
