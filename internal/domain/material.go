package domain

import (
	"strings"
	"time"
)

// MaxPhotosPerMaterial is the platform's photo limit for a single listing.
const MaxPhotosPerMaterial = 20

// Material is one unit of listing content. It is never edited after creation.
type Material struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Price       string    `json:"price"`
	Category    string    `json:"category,omitempty"`
	Condition   string    `json:"condition,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	PhotoPaths  []string  `json:"photo_paths"`
	LocationRef string    `json:"location_ref,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the fields a publish call cannot do without.
func (m *Material) Validate() error {
	if strings.TrimSpace(m.Title) == "" {
		return &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if len(m.PhotoPaths) == 0 {
		return &ValidationError{Field: "photo_paths", Message: "at least one photo is required"}
	}
	if len(m.PhotoPaths) > MaxPhotosPerMaterial {
		return &ValidationError{Field: "photo_paths", Message: "at most 20 photos are allowed"}
	}
	return nil
}

// MaterialRepository defines the interface for material data operations
type MaterialRepository interface {
	GetAll() ([]*Material, error)
	GetByIDs(ids []string) ([]*Material, error)
	AddMany(materials []*Material) error
	DeleteByIDs(ids []string) (int, error)
	DeleteAll() error
}

// SavedLocation is a named coordinate pair materials can refer to by name.
type SavedLocation struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationRepository stores saved locations.
type LocationRepository interface {
	GetAll() ([]*SavedLocation, error)
	GetByName(name string) (*SavedLocation, error)
	SaveMany(locations []*SavedLocation) (int, error)
	DeleteByIDs(ids []string) (int, error)
}

// GroupTarget is a community group discovered by a scan and kept for later use.
type GroupTarget struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	MemberCount int    `json:"member_count,omitempty"`
}

// GroupRepository stores group targets.
type GroupRepository interface {
	GetAll() ([]*GroupTarget, error)
	ReplaceAll(groups []*GroupTarget) error
}
