package platform

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"listing_orchestrator/internal/domain"
)

const (
	maxTitleRunes = 100
	maxTags       = 20
	maxTagRunes   = 20
)

// Catalog maps human category and condition labels to remote values.
type Catalog struct {
	Categories       map[string]string
	Conditions       map[string]string
	DefaultCategory  string
	DefaultCondition string
	Currency         string
}

// Category resolves name by exact match, then by containment either way, then the default.
func (c Catalog) Category(name string) string {
	return lookup(c.Categories, name, c.DefaultCategory)
}

// Condition resolves name like Category.
func (c Catalog) Condition(name string) string {
	return lookup(c.Conditions, name, c.DefaultCondition)
}

func lookup(table map[string]string, name, fallback string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fallback
	}
	for k, v := range table {
		if strings.ToLower(k) == key {
			return v
		}
	}
	// Longest label first so "peralatan rumah tangga" beats "peralatan".
	labels := make([]string, 0, len(table))
	for k := range table {
		labels = append(labels, k)
	}
	sort.Slice(labels, func(i, j int) bool {
		if len(labels[i]) != len(labels[j]) {
			return len(labels[i]) > len(labels[j])
		}
		return labels[i] < labels[j]
	})
	for _, k := range labels {
		lk := strings.ToLower(k)
		if strings.Contains(key, lk) || strings.Contains(lk, key) {
			return table[k]
		}
	}
	return fallback
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Lat float64
	Lng float64
}

// LocationLookup finds a saved location by name.
type LocationLookup func(name string) (*domain.SavedLocation, bool)

// ResolveCoordinates prefers the material's own coordinates, then a saved
// location matching its location ref, then fallback.
func ResolveCoordinates(m *domain.Material, lookup LocationLookup, fallback Coordinates) Coordinates {
	if m.Latitude != nil && m.Longitude != nil {
		return Coordinates{Lat: *m.Latitude, Lng: *m.Longitude}
	}
	if m.LocationRef != "" && lookup != nil {
		if loc, ok := lookup(m.LocationRef); ok && loc != nil {
			return Coordinates{Lat: loc.Latitude, Lng: loc.Longitude}
		}
	}
	return fallback
}

// CleanPrice keeps only the digits of a price.
func CleanPrice(price string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, price)
	if digits == "" {
		return "0"
	}
	return digits
}

// CleanTitle trims and truncates a title.
func CleanTitle(title string) string {
	t := strings.TrimSpace(title)
	if t == "" {
		return "Untitled"
	}
	if r := []rune(t); len(r) > maxTitleRunes {
		t = strings.TrimSpace(string(r[:maxTitleRunes]))
	}
	return t
}

// CleanTags trims, truncates and caps tags, dropping empty ones.
func CleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if r := []rune(t); len(r) > maxTagRunes {
			t = strings.TrimSpace(string(r[:maxTagRunes]))
		}
		if t == "" {
			continue
		}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

// Listing is the normalized listing content shared by create and edit calls.
type Listing struct {
	Title           string
	Description     string
	Price           string
	Currency        string
	CategoryID      string
	Condition       string
	Tags            []string
	Coordinates     Coordinates
	HideFromFriends bool
}

// BuildListing normalizes a material into listing content.
func BuildListing(m *domain.Material, cat Catalog, coords Coordinates, hideFromFriends bool) Listing {
	currency := cat.Currency
	if currency == "" {
		currency = "USD"
	}
	return Listing{
		Title:           CleanTitle(m.Title),
		Description:     m.Description,
		Price:           CleanPrice(m.Price),
		Currency:        currency,
		CategoryID:      cat.Category(m.Category),
		Condition:       cat.Condition(m.Condition),
		Tags:            CleanTags(m.Tags),
		Coordinates:     coords,
		HideFromFriends: hideFromFriends,
	}
}

func (l Listing) common(surface string) map[string]any {
	visibility := "VISIBLE_TO_EVERYONE"
	if l.HideFromFriends {
		visibility = "HIDDEN_FROM_FRIENDS"
	}
	attrs, _ := json.Marshal(map[string]string{"condition": l.Condition})
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"attribute_data_json":            string(attrs),
		"category_id":                    l.CategoryID,
		"comments_disabled":              true,
		"description":                    map[string]string{"text": l.Description},
		"hidden_from_friends_visibility": visibility,
		"is_photo_order_set_by_seller":   false,
		"item_price":                     map[string]string{"currency": l.Currency, "price": l.Price},
		"latitude":                       l.Coordinates.Lat,
		"longitude":                      l.Coordinates.Lng,
		"product_hashtag_names":          tags,
		"quantity":                       -1,
		"shipping_offered":               false,
		"surface":                        surface,
		"title":                          l.Title,
	}
}

// MutationID returns a fresh client mutation id.
func MutationID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return id
}

// CreateVariables builds the create mutation. A draft create leaves the listing
// unpublished until PublishDraftVariables is sent.
func CreateVariables(actorID string, l Listing, photoIDs []string, draft bool) map[string]any {
	common := l.common("composer")
	common["photo_ids"] = nonEmpty(photoIDs)
	if draft {
		common["draft_type"] = "DRAFT"
	}
	return map[string]any{
		"input": map[string]any{
			"client_mutation_id": MutationID(),
			"actor_id":           actorID,
			"data":               map[string]any{"common": common},
		},
	}
}

// EditVariables builds the edit mutation. Upload-time photo ids are never sent;
// only permanent ids, and the field is omitted when there are none.
func EditVariables(actorID, listingID string, l Listing, permanentPhotoIDs []string) map[string]any {
	common := l.common("edit_composer")
	if ids := nonEmpty(permanentPhotoIDs); len(ids) > 0 {
		common["photo_ids"] = ids
	}
	return map[string]any{
		"input": map[string]any{
			"client_mutation_id": MutationID(),
			"actor_id":           actorID,
			"listing_id":         listingID,
			"data":               map[string]any{"common": common},
		},
	}
}

// PublishDraftVariables references only the draft listing.
func PublishDraftVariables(actorID, listingID string) map[string]any {
	return map[string]any{
		"input": map[string]any{
			"client_mutation_id": MutationID(),
			"actor_id":           actorID,
			"target_draft_fbid":  listingID,
		},
	}
}

// ListingActionVariables builds renew, relist and delete calls.
func ListingActionVariables(actorID, listingID string) map[string]any {
	return map[string]any{
		"input": map[string]any{
			"client_mutation_id": MutationID(),
			"actor_id":           actorID,
			"listing_id":         listingID,
		},
	}
}

// GroupPostVariables builds a for-sale post into a group the actor belongs to.
// Upload-time photo ids are attached as they are; group posts have no draft stage.
func GroupPostVariables(actorID, groupID string, l Listing, photoIDs []string) map[string]any {
	attachments := make([]map[string]any, 0, len(photoIDs))
	for _, id := range nonEmpty(photoIDs) {
		attachments = append(attachments, map[string]any{"photo": map[string]string{"id": id}})
	}
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"input": map[string]any{
			"client_mutation_id": MutationID(),
			"actor_id":           actorID,
			"audience":           map[string]any{"to_id": groupID},
			"message":            map[string]string{"text": l.Description},
			"attachments":        attachments,
			"for_sale_item": map[string]any{
				"title":                 l.Title,
				"item_price":            map[string]string{"currency": l.Currency, "price": l.Price},
				"category_id":           l.CategoryID,
				"condition":             l.Condition,
				"latitude":              l.Coordinates.Lat,
				"longitude":             l.Coordinates.Lng,
				"product_hashtag_names": tags,
			},
		},
	}
}

// QueryVariables builds paginated read queries.
func QueryVariables(extra map[string]any, cursor string, count int) map[string]any {
	vars := map[string]any{"count": count}
	if cursor != "" {
		vars["cursor"] = cursor
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

func nonEmpty(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
