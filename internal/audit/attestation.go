package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Attestation certifies where a signal's input data came from. Written
// once per signal; duplicates by signal_id are silently ignored.
type Attestation struct {
	AttestationID      string     `json:"attestation_id" db:"attestation_id"`
	SignalID           string     `json:"signal_id" db:"signal_id"`
	SourceType         SourceType `json:"source_type" db:"source_type"`
	VerificationMethod string     `json:"verification_method" db:"verification_method"`
	ResponseSampleHash string     `json:"response_sample_hash" db:"response_sample_hash"`
	AttestedAt         time.Time  `json:"attested_at" db:"attested_at"`
}

// Attestor records attestations
type Attestor struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewAttestor builds an attestor over the audit database
func NewAttestor(db *sqlx.DB) *Attestor {
	return &Attestor{db: db, now: time.Now}
}

// HashResponseSample hashes a raw source API response for attestation
func HashResponseSample(sample []byte) string {
	sum := sha256.Sum256(sample)
	return hex.EncodeToString(sum[:])
}

// Attest records an attestation for a signal. Re-attesting the same
// signal id is a no-op and returns the empty id.
func (a *Attestor) Attest(ctx context.Context, signalID string, sourceType SourceType, responseSample []byte) (string, error) {
	att := Attestation{
		AttestationID:      uuid.NewString(),
		SignalID:           signalID,
		SourceType:         sourceType,
		VerificationMethod: "sha256_response_sample",
		ResponseSampleHash: HashResponseSample(responseSample),
		AttestedAt:         a.now().UTC(),
	}

	query := `
		INSERT INTO attestations (attestation_id, signal_id, source_type, verification_method, response_sample_hash, attested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (signal_id) DO NOTHING`

	res, err := a.db.ExecContext(ctx, query,
		att.AttestationID, att.SignalID, att.SourceType,
		att.VerificationMethod, att.ResponseSampleHash, att.AttestedAt)
	if err != nil {
		return "", fmt.Errorf("insert attestation: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		log.Debug().Str("signal_id", signalID).Msg("Signal already attested")
		return "", nil
	}
	return att.AttestationID, nil
}

// Get returns the attestation for a signal, or nil if none exists
func (a *Attestor) Get(ctx context.Context, signalID string) (*Attestation, error) {
	var att Attestation
	err := a.db.GetContext(ctx, &att, `
		SELECT attestation_id, signal_id, source_type, verification_method, response_sample_hash, attested_at
		FROM attestations WHERE signal_id = $1`, signalID)
	if err != nil {
		return nil, fmt.Errorf("get attestation for %s: %w", signalID, err)
	}
	return &att, nil
}
