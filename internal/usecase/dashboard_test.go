package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_orchestrator/internal/domain"
)

func TestDashboardStats(t *testing.T) {
	e := newTestEnv(t)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	require.NoError(t, e.accounts.Save(&domain.Account{ID: "a1", ExternalLoginID: "1", Status: domain.AccountActive, ProjectTag: "Spring", Stats: domain.AccountStats{ListingCount: 4}}))
	require.NoError(t, e.accounts.Save(&domain.Account{ID: "a2", ExternalLoginID: "2", Status: domain.AccountActive, ProjectTag: "Spring", Stats: domain.AccountStats{ListingCount: 1}}))
	require.NoError(t, e.accounts.Save(&domain.Account{ID: "a3", ExternalLoginID: "3", Status: domain.AccountCheckpoint}))
	e.addMaterials(t, 2, 1)
	require.NoError(t, e.groups.ReplaceAll([]*domain.GroupTarget{{ID: "g1"}}))

	require.NoError(t, e.history.Append(domain.LogPosting,
		&domain.HistoryEntry{Outcome: string(domain.ItemSucceeded), CreatedAt: now.Add(-time.Hour)},
		&domain.HistoryEntry{Outcome: string(domain.ItemSucceeded), CreatedAt: now.Add(-48 * time.Hour)},
		&domain.HistoryEntry{Outcome: string(domain.ItemFailed), CreatedAt: now.Add(-2 * time.Hour)},
	))
	require.NoError(t, e.history.Append(domain.LogGroupPost,
		&domain.HistoryEntry{Outcome: string(domain.ItemSkipped), CreatedAt: now.Add(-16 * time.Hour)},
	))

	quota := NewQuotaChecker(e.quota, map[string]int{QuotaKindPosting: 10})
	require.NoError(t, quota.Admit(QuotaKindPosting, 3))
	deps := e.deps()
	deps.Quota = quota

	d := NewDashboard(deps, func() []string { return []string{"c1"} })
	d.now = func() time.Time { return now }

	stats, err := d.Stats()
	require.NoError(t, err)
	assert.Equal(t, AccountTotals{
		Total:     3,
		ByStatus:  map[domain.AccountStatus]int{domain.AccountActive: 2, domain.AccountCheckpoint: 1},
		ByProject: map[string]int{"Spring": 2},
		Listings:  5,
	}, stats.Accounts)
	assert.Equal(t, 2, stats.Materials)
	assert.Equal(t, 1, stats.Groups)

	assert.Equal(t, OutcomeTotals{
		Total:     3,
		Today:     2,
		ByOutcome: map[string]int{"SUCCEEDED": 2, "FAILED": 1},
	}, stats.History[domain.LogPosting])
	assert.Equal(t, 0, stats.History[domain.LogGroupPost].Today, "yesterday evening is not today")
	assert.Equal(t, 1, stats.History[domain.LogGroupPost].ByOutcome["SKIPPED"])
	assert.Zero(t, stats.History[domain.LogOptimize].Total)

	require.Len(t, stats.Quota, 1)
	assert.Equal(t, 3, stats.Quota[0].Used)
	assert.Equal(t, []string{"c1"}, stats.RunningCampaigns)
	assert.Equal(t, now, stats.GeneratedAt)
}

func TestDashboardStatsEmpty(t *testing.T) {
	e := newTestEnv(t)
	stats, err := NewDashboard(e.deps(), nil).Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.Accounts.Total)
	assert.NotNil(t, stats.Quota)
	assert.NotNil(t, stats.RunningCampaigns)
	assert.Len(t, stats.History, 3)
}
