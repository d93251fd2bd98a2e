// Package collection maps domain repositories onto named JSON collections.
package collection

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"listing_orchestrator/internal/logger"
)

// Collection names in the store.
const (
	Accounts       = "accounts"
	Materials      = "materials"
	Campaigns      = "campaigns"
	SavedLocations = "saved_locations"
	GroupTargets   = "group_targets"
	Quota          = "quota"
	historyPrefix  = "history."
)

// Store is the raw key/value contract both the sqlite and memory backends satisfy.
type Store interface {
	Get(name string) (json.RawMessage, error)
	Set(name string, payload json.RawMessage) error
	Update(name string, fn func(current json.RawMessage) (json.RawMessage, error)) error
	Delete(name string) error
}

var emptyList = json.RawMessage("[]")

// decode parses a collection payload. A corrupt payload yields ok=false.
func decode[T any](name string, raw json.RawMessage) (items []T, ok bool) {
	if len(raw) == 0 {
		return nil, true
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		logger.Warn("collection payload is corrupt, resetting",
			zap.String("collection", name), zap.Error(err))
		return nil, false
	}
	return items, true
}

// Load reads a collection. A corrupt collection is deleted and reinitialised empty.
func Load[T any](s Store, name string) ([]T, error) {
	raw, err := s.Get(name)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	items, ok := decode[T](name, raw)
	if !ok {
		if err := s.Delete(name); err != nil {
			return nil, fmt.Errorf("reset %s: %w", name, err)
		}
		if err := s.Set(name, emptyList); err != nil {
			return nil, fmt.Errorf("reset %s: %w", name, err)
		}
		return nil, nil
	}
	return items, nil
}

// Mutate runs a serialized read-modify-write on a collection. A corrupt payload is
// treated as empty. fn returns the new contents and whether anything changed.
func Mutate[T any](s Store, name string, fn func(items []T) ([]T, bool, error)) error {
	return s.Update(name, func(current json.RawMessage) (json.RawMessage, error) {
		items, ok := decode[T](name, current)
		next, changed, err := fn(items)
		if err != nil {
			return nil, err
		}
		if !changed && ok {
			return nil, nil
		}
		if next == nil {
			return emptyList, nil
		}
		return json.Marshal(next)
	})
}

// AppendCapped appends entries and evicts the oldest ones beyond limit.
func AppendCapped[T any](s Store, name string, limit int, entries ...T) error {
	return Mutate(s, name, func(items []T) ([]T, bool, error) {
		items = append(items, entries...)
		if limit > 0 && len(items) > limit {
			items = append([]T(nil), items[len(items)-limit:]...)
		}
		return items, true, nil
	})
}

// Replace overwrites a collection.
func Replace[T any](s Store, name string, items []T) error {
	if items == nil {
		return s.Set(name, emptyList)
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.Set(name, raw)
}

func historyName(log string) string {
	return historyPrefix + log
}
