package collection

import (
	"listing_orchestrator/internal/domain"
)

// QuotaRepository stores usage counters in one collection.
type QuotaRepository struct {
	store Store
}

// NewQuotaRepository creates a new QuotaRepository.
func NewQuotaRepository(store Store) *QuotaRepository {
	return &QuotaRepository{store: store}
}

// Consume reserves count units of kind if used+count stays within max. Nothing is
// written when the request is refused.
func (r *QuotaRepository) Consume(kind string, max, count int) (domain.QuotaCounter, bool, error) {
	var result domain.QuotaCounter
	allowed := false
	err := Mutate(r.store, Quota, func(items []domain.QuotaCounter) ([]domain.QuotaCounter, bool, error) {
		idx := -1
		for i := range items {
			if items[i].Kind == kind {
				idx = i
				break
			}
		}
		if idx == -1 {
			items = append(items, domain.QuotaCounter{Kind: kind})
			idx = len(items) - 1
		}
		counter := &items[idx]
		counter.Max = max
		result = *counter
		if counter.Used+count > max {
			return items, false, nil
		}
		counter.Used += count
		result = *counter
		allowed = true
		return items, true, nil
	})
	if err != nil {
		return domain.QuotaCounter{}, false, err
	}
	return result, allowed, nil
}

func (r *QuotaRepository) GetAll() ([]domain.QuotaCounter, error) {
	return Load[domain.QuotaCounter](r.store, Quota)
}
