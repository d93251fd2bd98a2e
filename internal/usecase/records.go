package usecase

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"listing_orchestrator/internal/domain"
)

// Records exposes history logs and stored campaign definitions.
type Records struct {
	history   domain.HistoryRepository
	campaigns domain.CampaignRepository
}

// NewRecords creates a Records service.
func NewRecords(history domain.HistoryRepository, campaigns domain.CampaignRepository) *Records {
	return &Records{history: history, campaigns: campaigns}
}

func knownLog(log domain.HistoryLog) error {
	switch log {
	case domain.LogPosting, domain.LogOptimize, domain.LogKeyword, domain.LogGroupScrape, domain.LogGroupPost:
		return nil
	}
	return &domain.ValidationError{Field: "log", Message: fmt.Sprintf("unknown history log %q", log)}
}

// History returns a log newest first.
func (r *Records) History(log domain.HistoryLog) ([]*domain.HistoryEntry, error) {
	if err := knownLog(log); err != nil {
		return nil, err
	}
	entries, err := r.history.List(log)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// DeleteHistory removes entries by id.
func (r *Records) DeleteHistory(log domain.HistoryLog, ids []string) (int, error) {
	if err := knownLog(log); err != nil {
		return 0, err
	}
	return r.history.DeleteByIDs(log, ids)
}

// ClearHistory empties a log.
func (r *Records) ClearHistory(log domain.HistoryLog) error {
	if err := knownLog(log); err != nil {
		return err
	}
	return r.history.Clear(log)
}

// Campaigns lists stored campaign definitions.
func (r *Records) Campaigns() ([]*domain.Campaign, error) {
	return r.campaigns.GetAll()
}

// SaveCampaign validates c and inserts or replaces it by id.
func (r *Records) SaveCampaign(c *domain.Campaign) (*domain.Campaign, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	all, err := r.campaigns.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load campaigns: %w", err)
	}
	replaced := false
	for i, existing := range all {
		if existing.ID == c.ID {
			all[i] = c
			replaced = true
			break
		}
	}
	if !replaced {
		all = append(all, c)
	}
	if err := r.campaigns.ReplaceAll(all); err != nil {
		return nil, fmt.Errorf("failed to save campaigns: %w", err)
	}
	return c, nil
}

// DeleteCampaign removes a stored campaign.
func (r *Records) DeleteCampaign(id string) error {
	all, err := r.campaigns.GetAll()
	if err != nil {
		return fmt.Errorf("failed to load campaigns: %w", err)
	}
	kept := all[:0]
	found := false
	for _, c := range all {
		if c.ID == id {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return fmt.Errorf("campaign %s: %w", id, domain.ErrNotFound)
	}
	return r.campaigns.ReplaceAll(kept)
}

// ScheduledCampaigns returns stored campaigns carrying a cron schedule.
func (r *Records) ScheduledCampaigns() ([]*domain.Campaign, error) {
	all, err := r.campaigns.GetAll()
	if err != nil {
		return nil, err
	}
	var out []*domain.Campaign
	for _, c := range all {
		if c.Schedule != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
