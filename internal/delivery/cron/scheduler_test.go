package cron

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
)

type stubChecker struct{}

func (stubChecker) MonitorAllAccounts(context.Context) (map[domain.AccountStatus]int, error) {
	return map[domain.AccountStatus]int{}, nil
}

type stubRunner struct {
	mu  sync.Mutex
	ran []string
	err error
}

func (r *stubRunner) RunStoredCampaign(_ context.Context, id string) (domain.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, id)
	return domain.Summary{CampaignID: id}, r.err
}

type stubSource struct {
	campaigns []*domain.Campaign
}

func (s *stubSource) ScheduledCampaigns() ([]*domain.Campaign, error) { return s.campaigns, nil }

func TestNormalizeSchedule(t *testing.T) {
	assert.Equal(t, "0 */5 * * * *", normalizeSchedule("*/5 * * * *"))
	assert.Equal(t, "30 0 9 * * *", normalizeSchedule("30 0 9 * * *"))
	assert.Equal(t, "@every 1h", normalizeSchedule("@every 1h"))
}

func TestSyncCampaigns(t *testing.T) {
	source := &stubSource{campaigns: []*domain.Campaign{
		{ID: "morning", Schedule: "0 9 * * *"},
		{ID: "broken", Schedule: "not a schedule"},
	}}
	s := NewScheduler(&config.Config{CronSchedule: "@every 1h"}, stubChecker{}, &stubRunner{}, source)

	require.NoError(t, s.SyncCampaigns())
	assert.Equal(t, []string{"morning"}, s.Scheduled())
	assert.Len(t, s.cron.Entries(), 1)

	source.campaigns = []*domain.Campaign{{ID: "evening", Schedule: "@every 12h"}}
	require.NoError(t, s.SyncCampaigns())
	assert.Equal(t, []string{"evening"}, s.Scheduled())
	assert.Len(t, s.cron.Entries(), 1)
}

func TestRunCampaignJob(t *testing.T) {
	runner := &stubRunner{err: domain.ErrCampaignRunning}
	s := NewScheduler(&config.Config{}, stubChecker{}, runner, &stubSource{})

	s.runCampaignJob("morning")
	assert.Equal(t, []string{"morning"}, runner.ran)
}
