package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CanonicalJSON renders v as RFC 8785 canonical JSON so hashes are stable
// across processes and field orderings.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for canonicalization: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}

	return canonical, nil
}

// HashEvent computes the input_event_hash of a raw event: SHA-256 over its
// canonical JSON form, hex encoded.
func HashEvent(e RawEvent) (string, error) {
	payload, err := CanonicalJSON(e)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
