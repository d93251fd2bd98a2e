package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/infrastructure/platform"
	"listing_orchestrator/internal/logger"
)

// KeywordResult is what one keyword search turned up.
type KeywordResult struct {
	Keyword string               `json:"keyword"`
	Items   []domain.ScannedItem `json:"items"`
	Error   string               `json:"error,omitempty"`
}

// Discovery searches keywords, resolves locations and collects groups.
type Discovery struct {
	config  *config.Config
	opener  sessionOpener
	scanner *Scanner
	history domain.HistoryRepository
	groups  domain.GroupRepository
	events  *EventBus
}

// NewDiscovery creates a Discovery service.
func NewDiscovery(cfg *config.Config, deps Deps, scanner *Scanner, groups domain.GroupRepository) *Discovery {
	if deps.Events == nil {
		deps.Events = NewEventBus(cfg.EventBufferSize)
	}
	return &Discovery{
		config:  cfg,
		opener:  sessionOpener{accounts: deps.Accounts, provider: deps.Provider, tokens: deps.Tokens, events: deps.Events},
		scanner: scanner,
		history: deps.History,
		groups:  groups,
		events:  deps.Events,
	}
}

func (d *Discovery) account(id string) (*domain.Account, error) {
	acc, err := d.opener.accounts.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if acc == nil {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return acc, nil
}

func cleanKeywords(keywords []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" || seen[strings.ToLower(k)] {
			continue
		}
		seen[strings.ToLower(k)] = true
		out = append(out, k)
	}
	return out
}

// ScrapeKeywords searches each keyword from one account's session and records
// every search in the keyword history.
func (d *Discovery) ScrapeKeywords(ctx context.Context, accountID string, keywords []string) ([]KeywordResult, error) {
	keywords = cleanKeywords(keywords)
	if len(keywords) == 0 {
		return nil, &domain.ValidationError{Field: "keywords", Message: "at least one keyword is required"}
	}
	acc, err := d.account(accountID)
	if err != nil {
		return nil, err
	}
	s, tok, err := d.opener.open(ctx, acc)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	results := make([]KeywordResult, 0, len(keywords))
	for i, kw := range keywords {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		target := ScanTarget{
			Kind:      domain.ScanKeywords,
			URL:       surfaceURL(d.config.SurfaceURLs["search"], map[string]string{"query": kw}),
			Signature: d.config.QuerySignatures["search"],
			Op:        platform.OpSearchQuery,
			Vars:      map[string]any{"query": kw},
			Shape:     platform.SearchShape,
		}
		res, err := d.scanner.Scan(ctx, s, tok, target)
		kr := KeywordResult{Keyword: kw}
		entry := &domain.HistoryEntry{AccountID: acc.ID, TargetRef: kw}
		if err != nil {
			kr.Error = err.Error()
			entry.Outcome, entry.Message = string(domain.ItemFailed), err.Error()
		} else {
			for _, n := range res.Nodes {
				kr.Items = append(kr.Items, domain.ScannedItem{
					ID:        n.ID,
					AccountID: acc.ID,
					Kind:      domain.ScanKeywords,
					Title:     n.Title,
					Price:     n.Price,
					URL:       platform.ListingURL(d.config.PlatformBaseURL, n.ID),
				})
			}
			entry.Outcome = "SCANNED"
			entry.Message = fmt.Sprintf("%d results", len(kr.Items))
			entry.Data = map[string]string{"strategy": res.Strategy, "count": strconv.Itoa(len(kr.Items))}
		}
		appendHistory(d.history, domain.LogKeyword, entry)
		d.events.Publish(domain.Event{
			Type:         domain.EventScanProgress,
			AccountID:    acc.ID,
			Status:       string(domain.ScanKeywords),
			Message:      kw,
			CurrentIndex: i + 1,
			Total:        len(keywords),
		})
		results = append(results, kr)
	}
	return results, nil
}

// SearchLocations resolves a place name to candidate coordinates.
func (d *Discovery) SearchLocations(ctx context.Context, accountID, query string) ([]*domain.SavedLocation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &domain.ValidationError{Field: "query", Message: "must not be empty"}
	}
	acc, err := d.account(accountID)
	if err != nil {
		return nil, err
	}
	s, tok, err := d.opener.open(ctx, acc)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	res, err := d.scanner.Scan(ctx, s, tok, ScanTarget{
		Kind:      domain.ScanLocations,
		URL:       d.config.SurfaceURLs["locations"],
		Signature: d.config.QuerySignatures["locations"],
		Op:        platform.OpLocationQuery,
		Vars:      map[string]any{"query": query},
		Shape:     platform.LocationShape,
	})
	if err != nil {
		return nil, err
	}
	locations := make([]*domain.SavedLocation, 0, len(res.Nodes))
	for _, n := range res.Nodes {
		locations = append(locations, &domain.SavedLocation{ID: n.ID, Name: n.Title, Latitude: n.Latitude, Longitude: n.Longitude})
	}
	return locations, nil
}

// ScrapeGroups collects the groups an account belongs to and replaces that
// account's stored group targets.
func (d *Discovery) ScrapeGroups(ctx context.Context, accountID string) ([]*domain.GroupTarget, error) {
	acc, err := d.account(accountID)
	if err != nil {
		return nil, err
	}
	s, tok, err := d.opener.open(ctx, acc)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	res, err := d.scanner.Scan(ctx, s, tok, ScanTarget{
		Kind:      domain.ScanGroups,
		URL:       d.config.SurfaceURLs["groups"],
		Signature: d.config.QuerySignatures["groups"],
		Op:        platform.OpGroupQuery,
		Shape:     platform.GroupShape,
	})
	if err != nil {
		appendHistory(d.history, domain.LogGroupScrape, &domain.HistoryEntry{
			AccountID: acc.ID, Outcome: string(domain.ItemFailed), Message: err.Error(),
		})
		return nil, err
	}

	found := make([]*domain.GroupTarget, 0, len(res.Nodes))
	for _, n := range res.Nodes {
		url := n.URL
		if url == "" && d.config.PlatformBaseURL != "" {
			url = strings.TrimRight(d.config.PlatformBaseURL, "/") + "/groups/" + n.ID
		}
		found = append(found, &domain.GroupTarget{ID: n.ID, AccountID: acc.ID, Name: n.Title, URL: url, MemberCount: n.MemberCount})
	}

	stored, err := d.groups.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}
	merged := make([]*domain.GroupTarget, 0, len(stored)+len(found))
	for _, g := range stored {
		if g.AccountID != acc.ID {
			merged = append(merged, g)
		}
	}
	merged = append(merged, found...)
	if err := d.groups.ReplaceAll(merged); err != nil {
		return nil, fmt.Errorf("failed to save groups: %w", err)
	}

	logger.Info("Groups collected", zap.String("account_id", acc.ID), zap.Int("groups", len(found)), zap.String("strategy", res.Strategy))
	appendHistory(d.history, domain.LogGroupScrape, &domain.HistoryEntry{
		AccountID: acc.ID,
		Outcome:   "SCANNED",
		Message:   fmt.Sprintf("%d groups", len(found)),
		Data:      map[string]string{"strategy": res.Strategy},
	})
	return found, nil
}

// Groups lists stored group targets, optionally for one account.
func (d *Discovery) Groups(accountID string) ([]*domain.GroupTarget, error) {
	all, err := d.groups.GetAll()
	if err != nil || accountID == "" {
		return all, err
	}
	var out []*domain.GroupTarget
	for _, g := range all {
		if g.AccountID == accountID {
			out = append(out, g)
		}
	}
	return out, nil
}
