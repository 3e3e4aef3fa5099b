package persistence

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/omen-systems/omen/internal/domain"
)

// memoryRepo is the in-process store used when no database is configured.
// Signals are held newest first.
type memoryRepo struct {
	mu     sync.RWMutex
	byID   map[string]int
	byHash map[string]string
	items  []domain.OmenSignal // insertion order, oldest first
}

// NewMemoryRepo creates an empty in-memory signal store
func NewMemoryRepo() SignalRepo {
	return &memoryRepo{
		byID:   make(map[string]int),
		byHash: make(map[string]string),
	}
}

func (r *memoryRepo) Insert(_ context.Context, sig domain.OmenSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[sig.SignalID]; ok {
		return domain.Ef(domain.KindDuplicate, "signal %s already stored", sig.SignalID)
	}

	r.byID[sig.SignalID] = len(r.items)
	if sig.InputEventHash != "" {
		r.byHash[sig.InputEventHash] = sig.SignalID
	}
	r.items = append(r.items, sig)
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, signalID string) (*domain.OmenSignal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byID[signalID]
	if !ok {
		return nil, ErrNotFound
	}
	sig := r.items[idx]
	return &sig, nil
}

func (r *memoryRepo) FindByInputHash(_ context.Context, hash string) (*domain.OmenSignal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	sig := r.items[r.byID[id]]
	return &sig, nil
}

func (r *memoryRepo) List(_ context.Context, q ListQuery) (SignalPage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	offset := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil || n < 0 {
			return SignalPage{}, fmt.Errorf("invalid cursor %q", q.Cursor)
		}
		offset = n
	}

	var page SignalPage
	skipped := 0
	for i := len(r.items) - 1; i >= 0; i-- {
		sig := r.items[i]
		if q.Status != "" && sig.Status != q.Status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(page.Items) == limit {
			page.HasMore = true
			page.Cursor = strconv.Itoa(offset + limit)
			break
		}
		page.Items = append(page.Items, sig)
	}
	return page, nil
}

func (r *memoryRepo) Count(context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.items)), nil
}
