// Package persistence defines the signal store contracts. The engine runs
// against Postgres when DATABASE_URL is set and an in-memory store
// otherwise; both back deduplication and the HTTP read surface.
package persistence

import (
	"context"
	"errors"

	"github.com/omen-systems/omen/internal/domain"
)

// ErrNotFound is returned when a lookup matches nothing
var ErrNotFound = errors.New("signal not found")

// ListQuery filters and pages the signal list
type ListQuery struct {
	Limit  int
	Status domain.Status
	Cursor string
}

// SignalPage is one page of list results. Cursor is opaque; pass it back
// to continue.
type SignalPage struct {
	Items   []domain.OmenSignal `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

// SignalRepo stores emitted signals
type SignalRepo interface {
	// Insert stores a signal; inserting an existing signal_id is an error
	Insert(ctx context.Context, sig domain.OmenSignal) error

	// GetByID returns one signal or ErrNotFound
	GetByID(ctx context.Context, signalID string) (*domain.OmenSignal, error)

	// FindByInputHash returns the signal produced from the given input
	// event hash, or ErrNotFound. Backs pipeline deduplication.
	FindByInputHash(ctx context.Context, hash string) (*domain.OmenSignal, error)

	// List returns signals newest first
	List(ctx context.Context, q ListQuery) (SignalPage, error)

	// Count returns the number of stored signals
	Count(ctx context.Context) (int64, error)
}
