package usecase

import (
	"fmt"
	"time"

	"listing_orchestrator/internal/domain"
)

// dashboardLogs are the history logs summarized on the dashboard.
var dashboardLogs = []domain.HistoryLog{domain.LogPosting, domain.LogGroupPost, domain.LogOptimize}

// AccountTotals counts accounts by status and project.
type AccountTotals struct {
	Total     int                          `json:"total"`
	ByStatus  map[domain.AccountStatus]int `json:"by_status"`
	ByProject map[string]int               `json:"by_project"`
	Listings  int                          `json:"listings"`
}

// OutcomeTotals counts the entries of one history log.
type OutcomeTotals struct {
	Total     int            `json:"total"`
	Today     int            `json:"today"`
	ByOutcome map[string]int `json:"by_outcome"`
}

// DashboardStats is the overview shown on the dashboard.
type DashboardStats struct {
	Accounts         AccountTotals                       `json:"accounts"`
	Materials        int                                 `json:"materials"`
	Groups           int                                 `json:"groups"`
	History          map[domain.HistoryLog]OutcomeTotals `json:"history"`
	Quota            []domain.QuotaCounter               `json:"quota"`
	RunningCampaigns []string                            `json:"running_campaigns"`
	GeneratedAt      time.Time                           `json:"generated_at"`
}

// Dashboard aggregates accounts, history and quota usage.
type Dashboard struct {
	accounts  domain.AccountRepository
	materials domain.MaterialRepository
	groups    domain.GroupRepository
	history   domain.HistoryRepository
	quota     *QuotaChecker
	running   func() []string
	now       func() time.Time
}

// NewDashboard creates a Dashboard. groups, quota and running may be nil.
func NewDashboard(deps Deps, running func() []string) *Dashboard {
	return &Dashboard{
		accounts:  deps.Accounts,
		materials: deps.Materials,
		groups:    deps.Groups,
		history:   deps.History,
		quota:     deps.Quota,
		running:   running,
		now:       time.Now,
	}
}

// Stats computes the overview. "Today" starts at local midnight.
func (d *Dashboard) Stats() (DashboardStats, error) {
	now := d.now()
	stats := DashboardStats{
		History:          make(map[domain.HistoryLog]OutcomeTotals, len(dashboardLogs)),
		Quota:            []domain.QuotaCounter{},
		RunningCampaigns: []string{},
		GeneratedAt:      now,
	}

	accounts, err := d.accounts.GetAll()
	if err != nil {
		return DashboardStats{}, fmt.Errorf("failed to load accounts: %w", err)
	}
	stats.Accounts = AccountTotals{
		Total:     len(accounts),
		ByStatus:  make(map[domain.AccountStatus]int),
		ByProject: make(map[string]int),
	}
	for _, a := range accounts {
		stats.Accounts.ByStatus[a.Status]++
		if a.ProjectTag != "" {
			stats.Accounts.ByProject[a.ProjectTag]++
		}
		stats.Accounts.Listings += a.Stats.ListingCount
	}

	materials, err := d.materials.GetAll()
	if err != nil {
		return DashboardStats{}, fmt.Errorf("failed to load materials: %w", err)
	}
	stats.Materials = len(materials)

	if d.groups != nil {
		groups, err := d.groups.GetAll()
		if err != nil {
			return DashboardStats{}, fmt.Errorf("failed to load groups: %w", err)
		}
		stats.Groups = len(groups)
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, log := range dashboardLogs {
		entries, err := d.history.List(log)
		if err != nil {
			return DashboardStats{}, fmt.Errorf("failed to load %s history: %w", log, err)
		}
		totals := OutcomeTotals{Total: len(entries), ByOutcome: make(map[string]int)}
		for _, e := range entries {
			totals.ByOutcome[e.Outcome]++
			if !e.CreatedAt.Before(midnight) {
				totals.Today++
			}
		}
		stats.History[log] = totals
	}

	if d.quota != nil {
		usage, err := d.quota.Usage()
		if err != nil {
			return DashboardStats{}, fmt.Errorf("failed to load quota: %w", err)
		}
		if usage != nil {
			stats.Quota = usage
		}
	}
	if d.running != nil {
		if ids := d.running(); ids != nil {
			stats.RunningCampaigns = ids
		}
	}
	return stats, nil
}
