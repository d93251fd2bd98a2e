package usecase

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/logger"
)

// PhotoFetcher turns remote photo references into local files.
type PhotoFetcher interface {
	Localize(ctx context.Context, paths []string) ([]string, error)
	Prune(referenced []string) (int, error)
}

// MaterialManager stores listing content and the named locations it refers to.
type MaterialManager struct {
	materialRepo domain.MaterialRepository
	locationRepo domain.LocationRepository
	photos       PhotoFetcher
}

// NewMaterialManager creates a new material manager
func NewMaterialManager(materialRepo domain.MaterialRepository, locationRepo domain.LocationRepository) *MaterialManager {
	return &MaterialManager{materialRepo: materialRepo, locationRepo: locationRepo}
}

// SetPhotoFetcher enables http(s) entries in photo_paths.
func (m *MaterialManager) SetPhotoFetcher(f PhotoFetcher) {
	m.photos = f
}

// AddMaterials validates and stores materials. Photos that do not exist on disk
// are rejected up front so a campaign does not discover them one upload at a time.
func (m *MaterialManager) AddMaterials(ctx context.Context, materials []*domain.Material) ([]*domain.Material, error) {
	now := time.Now()
	for i, mat := range materials {
		mat.Title = strings.TrimSpace(mat.Title)
		if err := mat.Validate(); err != nil {
			return nil, fmt.Errorf("material %d: %w", i+1, err)
		}
		if m.photos != nil {
			local, err := m.photos.Localize(ctx, mat.PhotoPaths)
			if err != nil {
				return nil, fmt.Errorf("material %d: %w", i+1, &domain.ValidationError{Field: "photo_paths", Message: err.Error()})
			}
			mat.PhotoPaths = local
		}
		for _, path := range mat.PhotoPaths {
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("material %d: %w", i+1, &domain.ValidationError{Field: "photo_paths", Message: fmt.Sprintf("cannot read %s", path)})
			}
		}
		if mat.ID == "" {
			mat.ID = uuid.NewString()
		}
		if mat.CreatedAt.IsZero() {
			mat.CreatedAt = now
		}
	}
	if err := m.materialRepo.AddMany(materials); err != nil {
		return nil, fmt.Errorf("failed to save materials: %w", err)
	}
	logger.Info("Materials added", zap.Int("count", len(materials)))
	return materials, nil
}

// ListMaterials returns all stored materials
func (m *MaterialManager) ListMaterials() ([]*domain.Material, error) {
	return m.materialRepo.GetAll()
}

// DeleteMaterials removes materials by id; an empty set removes nothing.
func (m *MaterialManager) DeleteMaterials(ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := m.materialRepo.DeleteByIDs(ids)
	if err != nil {
		return 0, err
	}
	m.pruneMedia()
	return n, nil
}

// DeleteAllMaterials clears the material library
func (m *MaterialManager) DeleteAllMaterials() error {
	if err := m.materialRepo.DeleteAll(); err != nil {
		return err
	}
	m.pruneMedia()
	return nil
}

// pruneMedia drops downloaded photos left without a material. Failures only log.
func (m *MaterialManager) pruneMedia() {
	if m.photos == nil {
		return
	}
	materials, err := m.materialRepo.GetAll()
	if err != nil {
		logger.Warn("Skipping media prune", zap.Error(err))
		return
	}
	var referenced []string
	for _, mat := range materials {
		referenced = append(referenced, mat.PhotoPaths...)
	}
	removed, err := m.photos.Prune(referenced)
	if err != nil {
		logger.Warn("Media prune failed", zap.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("Unused photos removed", zap.Int("count", removed))
	}
}

// ListLocations returns saved locations
func (m *MaterialManager) ListLocations() ([]*domain.SavedLocation, error) {
	return m.locationRepo.GetAll()
}

// SaveLocations stores named coordinates.
func (m *MaterialManager) SaveLocations(locations []*domain.SavedLocation) (int, error) {
	for _, loc := range locations {
		loc.Name = strings.TrimSpace(loc.Name)
		if loc.Name == "" {
			return 0, &domain.ValidationError{Field: "name", Message: "location name must not be empty"}
		}
		if loc.ID == "" {
			loc.ID = uuid.NewString()
		}
	}
	return m.locationRepo.SaveMany(locations)
}

// DeleteLocations removes saved locations by id
func (m *MaterialManager) DeleteLocations(ids []string) (int, error) {
	return m.locationRepo.DeleteByIDs(ids)
}
