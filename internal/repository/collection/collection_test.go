package collection

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/repository/memory"
)

func TestLoadResetsCorruptCollection(t *testing.T) {
	s := memory.NewStore()
	require.NoError(t, s.Set(Accounts, json.RawMessage(`{not json`)))

	repo := NewAccountRepository(s)
	accounts, err := repo.GetAll()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	raw, err := s.Get(Accounts)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestAccountAddManySkipsKnownLogins(t *testing.T) {
	repo := NewAccountRepository(memory.NewStore())

	added, err := repo.AddMany([]*domain.Account{
		{ExternalLoginID: "uid1"},
		{ExternalLoginID: "uid2"},
		{ExternalLoginID: "uid1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = repo.AddMany([]*domain.Account{{ExternalLoginID: "uid2"}})
	require.NoError(t, err)
	assert.Zero(t, added)

	acc, err := repo.GetByLogin("uid1")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.NotEmpty(t, acc.ID)

	require.NoError(t, repo.Delete(acc.ID))
	missing, err := repo.GetByID(acc.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAccountSaveReplaces(t *testing.T) {
	repo := NewAccountRepository(memory.NewStore())
	acc := &domain.Account{ExternalLoginID: "uid1", Status: domain.AccountPending}
	require.NoError(t, repo.Save(acc))

	acc.Status = domain.AccountInvalid
	require.NoError(t, repo.Save(acc))

	all, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.AccountInvalid, all[0].Status)

	ordered, err := repo.GetByIDs([]string{"unknown", acc.ID})
	require.NoError(t, err)
	require.Len(t, ordered, 1)
}

func TestHistoryCapEvictsOldestFirst(t *testing.T) {
	repo := NewHistoryRepository(memory.NewStore(), 3)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Append(domain.LogPosting, &domain.HistoryEntry{TargetRef: fmt.Sprint(i)}))
	}

	entries, err := repo.List(domain.LogPosting)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "2", entries[0].TargetRef)
	assert.Equal(t, "4", entries[2].TargetRef)
	assert.Equal(t, domain.LogPosting, entries[0].Log)
}

func TestHistoryConcurrentAppendsAreNotLost(t *testing.T) {
	repo := NewHistoryRepository(memory.NewStore(), 0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, repo.Append(domain.LogOptimize, &domain.HistoryEntry{TargetRef: fmt.Sprint(i)}))
		}(i)
	}
	wg.Wait()

	entries, err := repo.List(domain.LogOptimize)
	require.NoError(t, err)
	assert.Len(t, entries, 50)
}

func TestHistoryDeleteAndClear(t *testing.T) {
	repo := NewHistoryRepository(memory.NewStore(), 0)
	a := &domain.HistoryEntry{Outcome: "SUCCEEDED"}
	b := &domain.HistoryEntry{Outcome: "FAILED"}
	require.NoError(t, repo.Append(domain.LogKeyword, a, b))

	n, err := repo.DeleteByIDs(domain.LogKeyword, []string{a.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.Clear(domain.LogKeyword))
	entries, err := repo.List(domain.LogKeyword)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQuotaConsume(t *testing.T) {
	s := memory.NewStore()
	require.NoError(t, Replace(s, Quota, []domain.QuotaCounter{{Kind: "posting", Max: 5, Used: 3}}))
	repo := NewQuotaRepository(s)

	counter, ok, err := repo.Consume("posting", 5, 5)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, counter.Used)

	counter, ok, err = repo.Consume("posting", 5, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, counter.Used)

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Equal(t, []domain.QuotaCounter{{Kind: "posting", Max: 5, Used: 5}}, all)
}

func TestMaterialsAndLocations(t *testing.T) {
	s := memory.NewStore()
	materials := NewMaterialRepository(s)
	m1 := &domain.Material{Title: "a"}
	m2 := &domain.Material{Title: "b"}
	require.NoError(t, materials.AddMany([]*domain.Material{m1, m2}))

	got, err := materials.GetByIDs([]string{m2.ID, m1.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Title)

	n, err := materials.DeleteByIDs([]string{m1.ID, "nope"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, materials.DeleteAll())
	all, err := materials.GetAll()
	require.NoError(t, err)
	assert.Empty(t, all)

	locations := NewLocationRepository(s)
	added, err := locations.SaveMany([]*domain.SavedLocation{{ID: "l1", Name: "Depot", Latitude: 1, Longitude: 2}, {ID: "l2", Name: "Depot"}})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	loc, err := locations.GetByName("Depot")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, 2.0, loc.Longitude)
}
