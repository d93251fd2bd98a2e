package collection

import (
	"listing_orchestrator/internal/domain"
)

// CampaignRepository is a collection-backed domain.CampaignRepository.
type CampaignRepository struct {
	store Store
}

// NewCampaignRepository creates a new CampaignRepository.
func NewCampaignRepository(store Store) *CampaignRepository {
	return &CampaignRepository{store: store}
}

func (r *CampaignRepository) GetAll() ([]*domain.Campaign, error) {
	items, err := Load[domain.Campaign](r.store, Campaigns)
	if err != nil {
		return nil, err
	}
	result := make([]*domain.Campaign, 0, len(items))
	for i := range items {
		result = append(result, &items[i])
	}
	return result, nil
}

// GetByID returns a campaign by ID, or nil when absent.
func (r *CampaignRepository) GetByID(id string) (*domain.Campaign, error) {
	all, err := r.GetAll()
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

// ReplaceAll overwrites the stored campaign definitions.
func (r *CampaignRepository) ReplaceAll(campaigns []*domain.Campaign) error {
	items := make([]domain.Campaign, 0, len(campaigns))
	for _, c := range campaigns {
		items = append(items, *c)
	}
	return Replace(r.store, Campaigns, items)
}

// LocationRepository is a collection-backed domain.LocationRepository.
type LocationRepository struct {
	store Store
}

// NewLocationRepository creates a new LocationRepository.
func NewLocationRepository(store Store) *LocationRepository {
	return &LocationRepository{store: store}
}

func (r *LocationRepository) GetAll() ([]*domain.SavedLocation, error) {
	items, err := Load[domain.SavedLocation](r.store, SavedLocations)
	if err != nil {
		return nil, err
	}
	result := make([]*domain.SavedLocation, 0, len(items))
	for i := range items {
		result = append(result, &items[i])
	}
	return result, nil
}

// GetByName returns the first location with the given name, or nil.
func (r *LocationRepository) GetByName(name string) (*domain.SavedLocation, error) {
	all, err := r.GetAll()
	if err != nil {
		return nil, err
	}
	for _, loc := range all {
		if loc.Name == name {
			return loc, nil
		}
	}
	return nil, nil
}

// SaveMany stores locations, skipping names already present. It returns how many were added.
func (r *LocationRepository) SaveMany(locations []*domain.SavedLocation) (int, error) {
	added := 0
	err := Mutate(r.store, SavedLocations, func(items []domain.SavedLocation) ([]domain.SavedLocation, bool, error) {
		seen := make(map[string]struct{}, len(items))
		for _, item := range items {
			seen[item.Name] = struct{}{}
		}
		for _, loc := range locations {
			if _, dup := seen[loc.Name]; dup {
				continue
			}
			seen[loc.Name] = struct{}{}
			items = append(items, *loc)
			added++
		}
		return items, added > 0, nil
	})
	return added, err
}

func (r *LocationRepository) DeleteByIDs(ids []string) (int, error) {
	return deleteByID(r.store, SavedLocations, ids, func(l domain.SavedLocation) string { return l.ID })
}

// GroupRepository is a collection-backed domain.GroupRepository.
type GroupRepository struct {
	store Store
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(store Store) *GroupRepository {
	return &GroupRepository{store: store}
}

func (r *GroupRepository) GetAll() ([]*domain.GroupTarget, error) {
	items, err := Load[domain.GroupTarget](r.store, GroupTargets)
	if err != nil {
		return nil, err
	}
	result := make([]*domain.GroupTarget, 0, len(items))
	for i := range items {
		result = append(result, &items[i])
	}
	return result, nil
}

func (r *GroupRepository) ReplaceAll(groups []*domain.GroupTarget) error {
	items := make([]domain.GroupTarget, 0, len(groups))
	for _, g := range groups {
		items = append(items, *g)
	}
	return Replace(r.store, GroupTargets, items)
}
