package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/infrastructure/platform"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func drain(ch <-chan domain.Event) map[domain.EventType]int {
	counts := make(map[domain.EventType]int)
	for {
		select {
		case ev := <-ch:
			counts[ev.Type]++
		default:
			return counts
		}
	}
}

func assertSummaryConsistent(t *testing.T, s domain.Summary) {
	t.Helper()
	assert.Equal(t, s.Total, s.Succeeded+s.Failed+s.Skipped)
	assert.LessOrEqual(t, s.Aborted, s.Failed)
}

func TestRunCampaignPublishesEveryItem(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "alice", "bob")
	materials := e.addMaterials(t, 3, 1)
	events, cancel := e.events.Subscribe()
	defer cancel()

	summary, err := e.orch.RunCampaign(context.Background(), &domain.Campaign{
		ID:           "c-all",
		AccountIDs:   accounts,
		MaterialIDs:  materials,
		Distribution: domain.Distribution{Kind: domain.DistributeAll},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Summary{CampaignID: "c-all", Succeeded: 6, Total: 6}, summary)
	assertSummaryConsistent(t, summary)

	entries, err := e.history.List(domain.LogPosting)
	require.NoError(t, err)
	require.Len(t, entries, 6)
	for _, entry := range entries {
		assert.Equal(t, string(domain.ItemSucceeded), entry.Outcome)
		assert.Equal(t, "https://market.test/item/L1", entry.URL)
		assert.Equal(t, "STANDARD", entry.Data["mode"])
		assert.NotEmpty(t, entry.Data["title"])
	}

	counts := drain(events)
	assert.Equal(t, 1, counts[domain.EventCampaignStarted])
	assert.Equal(t, 6, counts[domain.EventItemStatus])
	assert.Equal(t, 1, counts[domain.EventCampaignFinished])

	for _, id := range accounts {
		assert.True(t, e.provider.sessions[id].closed, "session of %s closed", id)
	}
	assert.Empty(t, e.orch.RunningCampaigns())
	assert.Equal(t, 2, e.tokens.calls, "one extraction per account")
}

func TestItemsOfOneAccountRunInOrder(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "alice")
	materials := e.addMaterials(t, 3, 1)

	_, err := e.orch.RunCampaign(context.Background(), &domain.Campaign{AccountIDs: accounts, MaterialIDs: materials})
	require.NoError(t, err)

	assert.Equal(t, []string{"/photos/0-0.jpg", "/photos/1-0.jpg", "/photos/2-0.jpg"}, e.uploader.paths)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, e.sleeper.durations(), "a delay between items, none before the first")
	assert.Equal(t, []string{e.cfg.PlatformCreateURL}, e.provider.sessions[accounts[0]].navigated, "the limit is checked once")
}

func TestConcurrencyIsBounded(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "a", "b", "c", "d")
	materials := e.addMaterials(t, 2, 1)

	summary, err := e.orch.RunCampaign(context.Background(), &domain.Campaign{
		AccountIDs:  accounts,
		MaterialIDs: materials,
		Concurrency: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Succeeded)
	assert.LessOrEqual(t, e.provider.peak(), 2)
	assert.Len(t, e.provider.acquired, 4)
}

func TestAntiDuplicateSaveFailureRecordsPhaseMessage(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "alice")
	materials := e.addMaterials(t, 1, 1)
	e.remote.respond = func(op string, _ map[string]any) ([]byte, error) {
		if op == platform.OpEditListing {
			return nil, &domain.RemoteMutationError{Message: "Listing could not be saved"}
		}
		return createdBody("D1", "P1"), nil
	}

	summary, err := e.orch.RunCampaign(context.Background(), &domain.Campaign{
		AccountIDs:  accounts,
		MaterialIDs: materials,
		Mode:        domain.ModeAntiDuplicate,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, e.remote.count(platform.OpPublishDraft))

	entries, err := e.history.List(domain.LogPosting)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(domain.ItemFailed), entries[0].Outcome)
	assert.Equal(t, "save failed: Listing could not be saved", entries[0].Message)
	assert.Equal(t, "ANTI_DUPLICATE", entries[0].Data["mode"])
}

func TestStopCampaignStopsFurtherMutations(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "alice")
	materials := e.addMaterials(t, 3, 1)
	stopped := make(chan bool, 1)
	e.remote.onCall = func(op string) {
		if op == platform.OpCreateListing && len(stopped) == 0 {
			stopped <- e.orch.StopCampaign("c-stop")
		}
	}

	summary, err := e.orch.RunCampaign(context.Background(), &domain.Campaign{
		ID:          "c-stop",
		AccountIDs:  accounts,
		MaterialIDs: materials,
	})
	require.NoError(t, err)
	assert.True(t, <-stopped)
	assert.Equal(t, 1, e.remote.count(platform.OpCreateListing), "the in-flight call completes, nothing after it")
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Aborted)
	assertSummaryConsistent(t, summary)
	assert.False(t, e.orch.StopCampaign("c-stop"), "finished campaigns are gone from the registry")
}

func TestAccountLimitedFailsRemainingItems(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "limited", "fine")
	materials := e.addMaterials(t, 2, 1)
	e.provider.sessions[accounts[0]] = &fakeSession{content: "<div>Limit reached for today</div>"}

	summary, err := e.orch.RunCampaign(context.Background(), &domain.Campaign{AccountIDs: accounts, MaterialIDs: materials})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)

	entries, err := e.history.List(domain.LogPosting)
	require.NoError(t, err)
	for _, entry := range entries {
		if entry.AccountID == accounts[0] {
			assert.Equal(t, ReasonAccountLimited, entry.Message)
		}
	}
	assert.Equal(t, 2, e.remote.count(platform.OpCreateListing))
}

func TestGroupCampaignPostsIntoJoinedGroups(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "alice")
	materials := e.addMaterials(t, 2, 1)
	require.NoError(t, e.groups.ReplaceAll([]*domain.GroupTarget{
		{ID: "g1", AccountID: accounts[0], Name: "Jual Beli Bandung"},
		{ID: "g2", Name: "Open group"},
		{ID: "g3", AccountID: "acc-bob", Name: "Bob's group"},
	}))
	e.provider.sessions[accounts[0]] = &fakeSession{content: "<div>Limit reached for today</div>"}
	e.remote.respond = func(op string, _ map[string]any) ([]byte, error) {
		if op != platform.OpGroupPost {
			return nil, errors.New(op + " not expected")
		}
		return storyBody("S1", "https://market.test/groups/x/posts/S1"), nil
	}

	summary, err := e.orch.RunCampaign(context.Background(), &domain.Campaign{
		ID:          "c-groups",
		AccountIDs:  accounts,
		MaterialIDs: materials,
		Destination: domain.DestinationGroups,
		GroupIDs:    []string{"g1", "g2", "g3", "gone"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Summary{CampaignID: "c-groups", Succeeded: 4, Skipped: 4, Total: 8}, summary)
	assertSummaryConsistent(t, summary)
	assert.Equal(t, 4, e.remote.count(platform.OpGroupPost))
	assert.Empty(t, e.provider.sessions[accounts[0]].navigated, "marketplace limit is not checked for group posts")

	posted, err := e.history.List(domain.LogPosting)
	require.NoError(t, err)
	assert.Empty(t, posted)

	entries, err := e.history.List(domain.LogGroupPost)
	require.NoError(t, err)
	require.Len(t, entries, 8)
	reasons := map[string]string{}
	for _, entry := range entries {
		reasons[entry.Data["group_id"]] = entry.Outcome + " " + entry.Message
	}
	assert.Equal(t, map[string]string{
		"g1":   "SUCCEEDED ",
		"g2":   "SUCCEEDED ",
		"g3":   "SKIPPED " + ReasonGroupNotJoined,
		"gone": "SKIPPED " + ReasonGroupNotFound,
	}, reasons)
}

func TestGroupCampaignNeedsGroups(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "alice")
	materials := e.addMaterials(t, 1, 1)

	_, err := e.orch.StartCampaign(context.Background(), &domain.Campaign{
		AccountIDs:  accounts,
		MaterialIDs: materials,
		Destination: domain.DestinationGroups,
	})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "group_ids", ve.Field)
	assert.Empty(t, e.provider.acquired)
}

func TestSessionFailureMarksAccount(t *testing.T) {
	tests := []struct {
		kind domain.SessionErrorKind
		want domain.AccountStatus
	}{
		{domain.SessionInvalid, domain.AccountInvalid},
		{domain.SessionNoCredential, domain.AccountInvalid},
		{domain.SessionIntervention, domain.AccountCheckpoint},
		{domain.SessionLaunchFailure, domain.AccountActive},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e := newTestEnv(t)
			accounts := e.addAccounts(t, "alice")
			materials := e.addMaterials(t, 2, 1)
			e.provider.errs[accounts[0]] = &domain.SessionError{Kind: tt.kind, AccountID: accounts[0]}

			summary, err := e.orch.RunCampaign(context.Background(), &domain.Campaign{AccountIDs: accounts, MaterialIDs: materials})
			require.NoError(t, err)
			assert.Equal(t, 2, summary.Failed)
			assert.Len(t, e.provider.acquired, 1, "no retry for the remaining items")

			acc, err := e.accounts.GetByID(accounts[0])
			require.NoError(t, err)
			assert.Equal(t, tt.want, acc.Status)
			if tt.want != domain.AccountActive {
				assert.Empty(t, acc.SessionHandle)
			}
			assert.Empty(t, e.remote.ops())
		})
	}
}

func TestTokenFailureIsItemLevel(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "alice")
	materials := e.addMaterials(t, 3, 1)
	e.tokens.errs = []error{&domain.TokenExtractionError{Attempts: 3, Missing: []string{"csrf_token"}}}

	summary, err := e.orch.RunCampaign(context.Background(), &domain.Campaign{AccountIDs: accounts, MaterialIDs: materials})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, e.tokens.calls, "extraction is retried on the next item")
}

func TestTokensAreRefreshedPeriodically(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "alice")
	materials := e.addMaterials(t, 16, 1)

	summary, err := e.orch.RunCampaign(context.Background(), &domain.Campaign{AccountIDs: accounts, MaterialIDs: materials})
	require.NoError(t, err)
	assert.Equal(t, 16, summary.Succeeded)
	assert.Equal(t, 2, e.tokens.calls)
}

func TestMissingMaterialIsSkipped(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "alice")
	materials := e.addMaterials(t, 1, 1)

	summary, err := e.orch.RunCampaign(context.Background(), &domain.Campaign{
		AccountIDs:  accounts,
		MaterialIDs: append([]string{"ghost"}, materials...),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Succeeded)
	assertSummaryConsistent(t, summary)
}

func TestQuotaRefusalHasNoSideEffects(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "alice")
	materials := e.addMaterials(t, 3, 1)
	deps := e.deps()
	deps.Quota = NewQuotaChecker(e.quota, map[string]int{QuotaKindPosting: 2})
	orch := NewOrchestrator(e.cfg, deps)

	_, err := orch.StartCampaign(context.Background(), &domain.Campaign{ID: "c-q", AccountIDs: accounts, MaterialIDs: materials})
	var quotaErr *domain.QuotaExceededError
	require.True(t, errors.As(err, &quotaErr))
	assert.Empty(t, orch.RunningCampaigns())
	assert.Empty(t, e.provider.acquired)

	entries, err := e.history.List(domain.LogPosting)
	require.NoError(t, err)
	assert.Empty(t, entries)

	usage, err := deps.Quota.Usage()
	require.NoError(t, err)
	for _, c := range usage {
		assert.Zero(t, c.Used)
	}
}

func TestStartCampaignRejections(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "alice")
	materials := e.addMaterials(t, 1, 1)

	_, err := e.orch.StartCampaign(context.Background(), &domain.Campaign{MaterialIDs: materials})
	var validation *domain.ValidationError
	assert.True(t, errors.As(err, &validation))

	_, err = e.orch.StartCampaign(context.Background(), &domain.Campaign{
		AccountIDs:   accounts,
		Distribution: domain.Distribution{Kind: domain.DistributeMap, Map: map[string][]string{"someone-else": materials}},
	})
	assert.True(t, errors.As(err, &validation), "an empty expansion is rejected")

	_, release, ok := e.orch.Registry().Register("c-dup")
	require.True(t, ok)
	defer release()
	_, err = e.orch.StartCampaign(context.Background(), &domain.Campaign{ID: "c-dup", AccountIDs: accounts, MaterialIDs: materials})
	assert.ErrorIs(t, err, domain.ErrCampaignRunning)
}

func TestRunStoredCampaign(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "alice")
	materials := e.addMaterials(t, 2, 1)
	require.NoError(t, e.campaigns.ReplaceAll([]*domain.Campaign{{ID: "stored", AccountIDs: accounts, MaterialIDs: materials}}))

	summary, err := e.orch.RunStoredCampaign(context.Background(), "stored")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)

	_, err = e.orch.RunStoredCampaign(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelledContextAbortsRemainingItems(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "alice")
	materials := e.addMaterials(t, 3, 1)
	ctx, cancel := context.WithCancel(context.Background())
	e.sleeper.onCall = cancel

	summary, err := e.orch.RunCampaign(ctx, &domain.Campaign{AccountIDs: accounts, MaterialIDs: materials})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Aborted)
}

func TestEstimateCampaign(t *testing.T) {
	e := newTestEnv(t)
	accounts := e.addAccounts(t, "alice", "bob")
	materials := e.addMaterials(t, 2, 1)

	est, err := e.orch.EstimateCampaign(&domain.Campaign{
		AccountIDs:  accounts,
		MaterialIDs: materials,
		Concurrency: 1,
		DelayMin:    time.Second,
		DelayMax:    3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, est.Items)
	assert.Equal(t, 2, est.Accounts)
	assert.Equal(t, 2, est.PerAccount[accounts[0]])
	// 15s session + 2 x (1.5s photo + 2s call) + one delay, per account.
	assert.Equal(t, 46*time.Second, est.Best)
	assert.Equal(t, 50*time.Second, est.Worst)
	assert.Empty(t, e.remote.ops())
}

func TestMakespan(t *testing.T) {
	tests := []struct {
		jobs  []time.Duration
		slots int
		want  time.Duration
	}{
		{nil, 2, 0},
		{[]time.Duration{10, 10, 10}, 2, 20},
		{[]time.Duration{30, 10, 10, 10}, 2, 30},
		{[]time.Duration{5, 5}, 0, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, makespan(tt.jobs, tt.slots))
	}
}
