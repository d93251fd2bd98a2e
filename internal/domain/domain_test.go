package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountHandleFollowsStatus(t *testing.T) {
	now := time.Now()
	acc := &Account{ID: "a1", Status: AccountPending}

	require.Error(t, acc.MarkActive("", now))
	assert.Equal(t, AccountPending, acc.Status)

	require.NoError(t, acc.MarkActive("sessions/a1.json", now))
	assert.True(t, acc.HasSession())

	acc.MarkCheckpoint("checkpoint", now)
	assert.Equal(t, AccountCheckpoint, acc.Status)
	assert.Empty(t, acc.SessionHandle)

	require.NoError(t, acc.MarkActive("sessions/a1.json", now))
	acc.MarkInvalid("login rejected", now)
	assert.Equal(t, AccountInvalid, acc.Status)
	assert.Empty(t, acc.SessionHandle)
	assert.False(t, acc.HasSession())
}

func TestWorkItemTransitions(t *testing.T) {
	item := &WorkItem{State: ItemQueued}
	for _, s := range []ItemState{ItemAssigned, ItemAwaitingSession, ItemTokenExtracting, ItemExecuting} {
		require.NoError(t, item.Transition(s))
	}
	require.Error(t, item.Transition(ItemAssigned), "no backwards moves")

	require.NoError(t, item.Finish(ItemSucceeded, ""))
	err := item.Transition(ItemFailed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTerminalState))
	assert.Equal(t, ItemSucceeded, item.State)

	queued := &WorkItem{State: ItemQueued}
	require.NoError(t, queued.Finish(ItemAborted, "stopped"))
	require.Error(t, queued.Finish(ItemFailed, "again"))
	assert.Equal(t, "stopped", queued.Reason)
}

func TestExpandWorkItems(t *testing.T) {
	tests := []struct {
		name string
		c    Campaign
		want [][2]string
	}{
		{
			name: "all",
			c:    Campaign{AccountIDs: []string{"a", "b"}, MaterialIDs: []string{"m1", "m2"}, Distribution: Distribution{Kind: DistributeAll}},
			want: [][2]string{{"a", "m1"}, {"a", "m2"}, {"b", "m1"}, {"b", "m2"}},
		},
		{
			name: "split",
			c:    Campaign{AccountIDs: []string{"a", "b"}, MaterialIDs: []string{"m1", "m2", "m3"}, Distribution: Distribution{Kind: DistributeSplit}},
			want: [][2]string{{"a", "m1"}, {"a", "m3"}, {"b", "m2"}},
		},
		{
			name: "map",
			c: Campaign{AccountIDs: []string{"b", "a"}, Distribution: Distribution{Kind: DistributeMap, Map: map[string][]string{
				"a": {"m9"}, "b": {"m2", "m1"},
			}}},
			want: [][2]string{{"b", "m2"}, {"b", "m1"}, {"a", "m9"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := tt.c.ExpandWorkItems()
			require.Len(t, items, len(tt.want))
			for i, item := range items {
				assert.Equal(t, tt.want[i][0], item.AccountID)
				assert.Equal(t, tt.want[i][1], item.MaterialID)
				assert.Equal(t, i, item.Index)
				assert.Equal(t, ItemQueued, item.State)
			}
		})
	}
}

func TestExpandWorkItemsPerGroup(t *testing.T) {
	c := Campaign{
		AccountIDs:  []string{"a"},
		MaterialIDs: []string{"m1", "m2"},
		Destination: DestinationGroups,
		GroupIDs:    []string{"g1", "g2"},
	}
	var got [][3]string
	for i, item := range c.ExpandWorkItems() {
		assert.Equal(t, i, item.Index)
		got = append(got, [3]string{item.AccountID, item.MaterialID, item.GroupID})
	}
	assert.Equal(t, [][3]string{{"a", "m1", "g1"}, {"a", "m1", "g2"}, {"a", "m2", "g1"}, {"a", "m2", "g2"}}, got)
}

func TestCampaignValidateDestination(t *testing.T) {
	tests := []struct {
		name  string
		c     Campaign
		field string
	}{
		{"groups without ids", Campaign{Destination: DestinationGroups}, "group_ids"},
		{"groups with drafts", Campaign{Destination: DestinationGroups, GroupIDs: []string{"g"}, Mode: ModeAntiDuplicate}, "mode"},
		{"unknown", Campaign{Destination: "FEED"}, "destination"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.c.AccountIDs = []string{"a"}
			tt.c.MaterialIDs = []string{"m"}
			var ve *ValidationError
			require.ErrorAs(t, tt.c.Validate(), &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	ok := Campaign{AccountIDs: []string{"a"}, MaterialIDs: []string{"m"}, Destination: DestinationGroups, GroupIDs: []string{"g"}}
	assert.NoError(t, ok.Validate())
}

func TestCampaignValidate(t *testing.T) {
	valid := Campaign{AccountIDs: []string{"a"}, MaterialIDs: []string{"m"}, Mode: ModeAntiDuplicate}
	require.NoError(t, valid.Validate())

	noAccounts := valid
	noAccounts.AccountIDs = nil
	var ve *ValidationError
	require.ErrorAs(t, noAccounts.Validate(), &ve)
	assert.Equal(t, "account_ids", ve.Field)

	badMode := valid
	badMode.Mode = "TURBO"
	require.Error(t, badMode.Validate())

	badDelay := valid
	badDelay.DelayMin, badDelay.DelayMax = 2*time.Second, time.Second
	require.Error(t, badDelay.Validate())
}

func TestSummaryCountsAbortedAsFailed(t *testing.T) {
	var s Summary
	for _, st := range []ItemState{ItemSucceeded, ItemFailed, ItemAborted, ItemSkipped} {
		s.Add(st)
		s.Total++
	}
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 1, s.Aborted)
	assert.Equal(t, s.Total, s.Succeeded+s.Failed+s.Skipped)
}

func TestMaterialValidate(t *testing.T) {
	m := &Material{Title: "Chair", PhotoPaths: []string{"a.jpg"}}
	require.NoError(t, m.Validate())

	m.PhotoPaths = make([]string, 21)
	require.Error(t, m.Validate())

	m.PhotoPaths = nil
	require.Error(t, m.Validate())
}

func TestIsAccountLevel(t *testing.T) {
	assert.True(t, IsAccountLevel(&SessionError{Kind: SessionInvalid}))
	assert.True(t, IsAccountLevel(ErrAccountLimited))
	assert.False(t, IsAccountLevel(&RemoteMutationError{Message: "bad"}))
}
