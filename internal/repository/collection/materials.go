package collection

import (
	"time"

	"github.com/google/uuid"

	"listing_orchestrator/internal/domain"
)

// MaterialRepository is a collection-backed domain.MaterialRepository.
type MaterialRepository struct {
	store Store
}

// NewMaterialRepository creates a new MaterialRepository.
func NewMaterialRepository(store Store) *MaterialRepository {
	return &MaterialRepository{store: store}
}

func (r *MaterialRepository) GetAll() ([]*domain.Material, error) {
	items, err := Load[domain.Material](r.store, Materials)
	if err != nil {
		return nil, err
	}
	result := make([]*domain.Material, 0, len(items))
	for i := range items {
		result = append(result, &items[i])
	}
	return result, nil
}

// GetByIDs returns materials in the order of ids, skipping unknown ids.
func (r *MaterialRepository) GetByIDs(ids []string) ([]*domain.Material, error) {
	all, err := r.GetAll()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Material, len(all))
	for _, m := range all {
		byID[m.ID] = m
	}
	result := make([]*domain.Material, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			result = append(result, m)
		}
	}
	return result, nil
}

func (r *MaterialRepository) AddMany(materials []*domain.Material) error {
	return Mutate(r.store, Materials, func(items []domain.Material) ([]domain.Material, bool, error) {
		for _, m := range materials {
			if m.ID == "" {
				m.ID = uuid.NewString()
			}
			if m.CreatedAt.IsZero() {
				m.CreatedAt = time.Now()
			}
			items = append(items, *m)
		}
		return items, len(materials) > 0, nil
	})
}

func (r *MaterialRepository) DeleteByIDs(ids []string) (int, error) {
	return deleteByID(r.store, Materials, ids, func(m domain.Material) string { return m.ID })
}

func (r *MaterialRepository) DeleteAll() error {
	return r.store.Set(Materials, emptyList)
}

func deleteByID[T any](s Store, name string, ids []string, idOf func(T) string) (int, error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	removed := 0
	err := Mutate(s, name, func(items []T) ([]T, bool, error) {
		kept := items[:0]
		for _, item := range items {
			if _, ok := drop[idOf(item)]; ok {
				removed++
				continue
			}
			kept = append(kept, item)
		}
		return kept, removed > 0, nil
	})
	return removed, err
}
