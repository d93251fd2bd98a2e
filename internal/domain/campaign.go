package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PublishMode selects the publish workflow.
type PublishMode string

const (
	ModeStandard      PublishMode = "STANDARD"
	ModeAntiDuplicate PublishMode = "ANTI_DUPLICATE"
)

// Destination selects where a campaign publishes its materials.
type Destination string

const (
	DestinationMarketplace Destination = "MARKETPLACE"
	// DestinationGroups posts every assigned material into each of the campaign's groups.
	DestinationGroups Destination = "GROUPS"
)

// DistributionKind selects how materials are assigned to accounts.
type DistributionKind string

const (
	// DistributeAll gives every account every material.
	DistributeAll DistributionKind = "ALL"
	// DistributeSplit deals materials round-robin across accounts.
	DistributeSplit DistributionKind = "SPLIT"
	// DistributeMap uses an explicit account to materials map.
	DistributeMap DistributionKind = "MAP"
)

// Distribution is the material assignment policy of a campaign.
type Distribution struct {
	Kind DistributionKind    `json:"kind"`
	Map  map[string][]string `json:"map,omitempty"`
}

// Campaign is a caller-defined bulk publish run. The abort flag is not part of it:
// it lives only in the orchestrator for as long as the campaign runs.
type Campaign struct {
	ID              string        `json:"id"`
	Name            string        `json:"name,omitempty"`
	AccountIDs      []string      `json:"account_ids"`
	MaterialIDs     []string      `json:"material_ids"`
	Distribution    Distribution  `json:"distribution"`
	Concurrency     int           `json:"concurrency"`
	DelayMin        time.Duration `json:"delay_min"`
	DelayMax        time.Duration `json:"delay_max"`
	Mode            PublishMode   `json:"mode"`
	Destination     Destination   `json:"destination,omitempty"`
	GroupIDs        []string      `json:"group_ids,omitempty"`
	HideFromFriends bool          `json:"hide_from_friends,omitempty"`
	Schedule        string        `json:"schedule,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Validate checks the campaign definition before any work is admitted.
func (c *Campaign) Validate() error {
	if len(c.AccountIDs) == 0 {
		return &ValidationError{Field: "account_ids", Message: "at least one account is required"}
	}
	switch c.Distribution.Kind {
	case DistributeAll, DistributeSplit, "":
		if len(c.MaterialIDs) == 0 {
			return &ValidationError{Field: "material_ids", Message: "at least one material is required"}
		}
	case DistributeMap:
		if len(c.Distribution.Map) == 0 {
			return &ValidationError{Field: "distribution.map", Message: "must not be empty"}
		}
	default:
		return &ValidationError{Field: "distribution.kind", Message: fmt.Sprintf("unknown kind %q", c.Distribution.Kind)}
	}
	switch c.Mode {
	case ModeStandard, ModeAntiDuplicate, "":
	default:
		return &ValidationError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", c.Mode)}
	}
	switch c.Destination {
	case DestinationMarketplace, "":
	case DestinationGroups:
		if len(c.GroupIDs) == 0 {
			return &ValidationError{Field: "group_ids", Message: "at least one group is required"}
		}
		if c.Mode == ModeAntiDuplicate {
			return &ValidationError{Field: "mode", Message: "group posts have no draft stage"}
		}
	default:
		return &ValidationError{Field: "destination", Message: fmt.Sprintf("unknown destination %q", c.Destination)}
	}
	if c.DelayMax < c.DelayMin {
		return &ValidationError{Field: "delay_max", Message: "must not be below delay_min"}
	}
	return nil
}

// PostsToGroups reports whether the campaign targets groups instead of the marketplace.
func (c *Campaign) PostsToGroups() bool { return c.Destination == DestinationGroups }

// ExpandWorkItems turns the campaign into QUEUED work items. Items of one account keep
// material order; accounts keep campaign order. A group campaign yields one item per
// material and group, groups in campaign order.
func (c *Campaign) ExpandWorkItems() []*WorkItem {
	var items []*WorkItem
	add := func(accountID, materialID string) {
		groups := []string{""}
		if c.PostsToGroups() {
			groups = c.GroupIDs
		}
		for _, groupID := range groups {
			items = append(items, &WorkItem{
				ID:         uuid.NewString(),
				CampaignID: c.ID,
				AccountID:  accountID,
				MaterialID: materialID,
				GroupID:    groupID,
				Index:      len(items),
				State:      ItemQueued,
			})
		}
	}

	switch c.Distribution.Kind {
	case DistributeSplit:
		buckets := make([][]string, len(c.AccountIDs))
		for i, materialID := range c.MaterialIDs {
			slot := i % len(c.AccountIDs)
			buckets[slot] = append(buckets[slot], materialID)
		}
		for i, accountID := range c.AccountIDs {
			for _, materialID := range buckets[i] {
				add(accountID, materialID)
			}
		}
	case DistributeMap:
		for _, accountID := range c.AccountIDs {
			for _, materialID := range c.Distribution.Map[accountID] {
				add(accountID, materialID)
			}
		}
	default:
		for _, accountID := range c.AccountIDs {
			for _, materialID := range c.MaterialIDs {
				add(accountID, materialID)
			}
		}
	}
	return items
}

// CampaignRepository stores campaign definitions.
type CampaignRepository interface {
	GetAll() ([]*Campaign, error)
	GetByID(id string) (*Campaign, error)
	ReplaceAll(campaigns []*Campaign) error
}

// Summary is the final tally of a campaign run. Aborted items are counted as failed.
type Summary struct {
	CampaignID string `json:"campaign_id"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	Aborted    int    `json:"aborted"`
	Total      int    `json:"total"`
}

// Add counts one terminal item.
func (s *Summary) Add(state ItemState) {
	switch state {
	case ItemSucceeded:
		s.Succeeded++
	case ItemSkipped:
		s.Skipped++
	case ItemAborted:
		s.Aborted++
		s.Failed++
	default:
		s.Failed++
	}
}
