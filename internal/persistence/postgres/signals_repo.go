// Package postgres implements the signal store on PostgreSQL through
// sqlx. The full signal is stored as JSONB alongside the columns the
// queries need.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/persistence"
)

const uniqueViolation = "23505"

type signalsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSignalsRepo creates a PostgreSQL signal repository
func NewSignalsRepo(db *sqlx.DB, timeout time.Duration) persistence.SignalRepo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &signalsRepo{db: db, timeout: timeout}
}

func (r *signalsRepo) Insert(ctx context.Context, sig domain.OmenSignal) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	query := `
		INSERT INTO signals (signal_id, input_event_hash, source, status, category, signal_type, confidence_score, generated_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.ExecContext(ctx, query,
		sig.SignalID, sig.InputEventHash, sig.Source, sig.Status, sig.Category,
		sig.SignalType, sig.ConfidenceScore, sig.GeneratedAt, payload)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.Ef(domain.KindDuplicate, "signal %s already stored", sig.SignalID)
		}
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

func (r *signalsRepo) GetByID(ctx context.Context, signalID string) (*domain.OmenSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var payload []byte
	err := r.db.QueryRowxContext(ctx, `SELECT payload FROM signals WHERE signal_id = $1`, signalID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signal %s: %w", signalID, err)
	}
	return decodeSignal(payload)
}

func (r *signalsRepo) FindByInputHash(ctx context.Context, hash string) (*domain.OmenSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var payload []byte
	err := r.db.QueryRowxContext(ctx, `SELECT payload FROM signals WHERE input_event_hash = $1`, hash).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find signal by input hash: %w", err)
	}
	return decodeSignal(payload)
}

func (r *signalsRepo) List(ctx context.Context, q persistence.ListQuery) (persistence.SignalPage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil || n < 0 {
			return persistence.SignalPage{}, fmt.Errorf("invalid cursor %q", q.Cursor)
		}
		offset = n
	}

	// Fetch one extra row to learn whether another page exists
	query := `SELECT payload FROM signals`
	args := []any{}
	if q.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, q.Status)
	}
	query += fmt.Sprintf(` ORDER BY generated_at DESC, signal_id DESC LIMIT %d OFFSET %d`, limit+1, offset)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return persistence.SignalPage{}, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var page persistence.SignalPage
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return persistence.SignalPage{}, fmt.Errorf("scan signal row: %w", err)
		}
		sig, err := decodeSignal(payload)
		if err != nil {
			return persistence.SignalPage{}, err
		}
		page.Items = append(page.Items, *sig)
	}
	if err := rows.Err(); err != nil {
		return persistence.SignalPage{}, fmt.Errorf("list signals: %w", err)
	}

	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
		page.HasMore = true
		page.Cursor = strconv.Itoa(offset + limit)
	}
	return page, nil
}

func (r *signalsRepo) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var n int64
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM signals`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count signals: %w", err)
	}
	return n, nil
}

func decodeSignal(payload []byte) (*domain.OmenSignal, error) {
	var sig domain.OmenSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return nil, fmt.Errorf("decode stored signal: %w", err)
	}
	return &sig, nil
}
