package collection

import (
	"time"

	"github.com/google/uuid"

	"listing_orchestrator/internal/domain"
)

// HistoryRepository keeps one capped collection per log.
type HistoryRepository struct {
	store Store
	cap   int
}

// NewHistoryRepository creates a HistoryRepository; limit <= 0 uses the default cap.
func NewHistoryRepository(store Store, limit int) *HistoryRepository {
	if limit <= 0 {
		limit = domain.DefaultHistoryCap
	}
	return &HistoryRepository{store: store, cap: limit}
}

// Append adds entries to the log, evicting the oldest beyond the cap.
func (r *HistoryRepository) Append(log domain.HistoryLog, entries ...*domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]domain.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		e.Log = log
		values = append(values, *e)
	}
	return AppendCapped(r.store, historyName(string(log)), r.cap, values...)
}

// List returns the log oldest first.
func (r *HistoryRepository) List(log domain.HistoryLog) ([]*domain.HistoryEntry, error) {
	items, err := Load[domain.HistoryEntry](r.store, historyName(string(log)))
	if err != nil {
		return nil, err
	}
	result := make([]*domain.HistoryEntry, 0, len(items))
	for i := range items {
		result = append(result, &items[i])
	}
	return result, nil
}

func (r *HistoryRepository) DeleteByIDs(log domain.HistoryLog, ids []string) (int, error) {
	return deleteByID(r.store, historyName(string(log)), ids, func(e domain.HistoryEntry) string { return e.ID })
}

func (r *HistoryRepository) Clear(log domain.HistoryLog) error {
	return r.store.Set(historyName(string(log)), emptyList)
}
