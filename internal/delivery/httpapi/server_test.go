package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/infrastructure/crypto"
	"listing_orchestrator/internal/repository/collection"
	"listing_orchestrator/internal/repository/memory"
	"listing_orchestrator/internal/usecase"
)

type testServer struct {
	server *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{ServerPort: "0", EventBufferSize: 16}
	store := memory.NewStore()
	accounts := collection.NewAccountRepository(store)
	materials := collection.NewMaterialRepository(store)
	campaigns := collection.NewCampaignRepository(store)
	history := collection.NewHistoryRepository(store, 0)
	locations := collection.NewLocationRepository(store)
	quota := collection.NewQuotaRepository(store)
	events := usecase.NewEventBus(cfg.EventBufferSize)
	sealer, err := crypto.NewSealer("test-key")
	require.NoError(t, err)

	checker := usecase.NewQuotaChecker(quota, map[string]int{usecase.QuotaKindPosting: 2})
	deps := usecase.Deps{
		Accounts:  accounts,
		Materials: materials,
		Campaigns: campaigns,
		History:   history,
		Quota:     checker,
		Events:    events,
	}
	orchestrator := usecase.NewOrchestrator(cfg, deps)
	svc := Services{
		Accounts:     usecase.NewAccountManager(cfg, accounts, nil, nil, sealer, events),
		Materials:    usecase.NewMaterialManager(materials, locations),
		Orchestrator: orchestrator,
		Records:      usecase.NewRecords(history, campaigns),
		Quota:        checker,
		Dashboard:    usecase.NewDashboard(deps, orchestrator.RunningCampaigns),
	}
	return &testServer{server: NewServer(cfg, svc)}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/health", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(t, http.MethodPost, "/api/health", nil).Code)
}

func TestAccountEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/accounts/import", map[string]string{"text": "uid1|secret|Spring\nuid1|again"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res usecase.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, usecase.ImportResult{Imported: 1, Skipped: 1}, res)

	rec = ts.do(t, http.MethodGet, "/api/accounts?project=Spring", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, true, listed[0]["has_credential"])
	assert.Equal(t, "PENDING", listed[0]["status"])

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/accounts/ghost", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/accounts/ghost", nil).Code)
}

func TestMaterialEndpoints(t *testing.T) {
	ts := newTestServer(t)
	photo := filepath.Join(t.TempDir(), "1.jpg")
	require.NoError(t, os.WriteFile(photo, []byte{0xFF, 0xD8, 0xFF}, 0o644))

	rec := ts.do(t, http.MethodPost, "/api/materials", []domain.Material{{Title: "Meja", Price: "100", PhotoPaths: []string{photo}}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/materials", nil)
	var materials []domain.Material
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &materials))
	require.Len(t, materials, 1)
	assert.NotEmpty(t, materials[0].ID)

	rec = ts.do(t, http.MethodPost, "/api/materials", []domain.Material{{Title: "No photos"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/materials?all=true", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, ts.do(t, http.MethodGet, "/api/materials", nil).Body.String())
}

func TestCampaignEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/campaigns", map[string]any{"account_ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	campaign := map[string]any{
		"id":                "weekly",
		"account_ids":       []string{"a", "b"},
		"material_ids":      []string{"m1", "m2", "m3"},
		"distribution":      map[string]any{"kind": "SPLIT"},
		"delay_min_seconds": 1,
		"delay_max_seconds": 2,
	}
	rec = ts.do(t, http.MethodPost, "/api/campaigns", campaign)
	require.Equal(t, http.StatusCreated, rec.Code)
	var saved domain.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, "weekly", saved.ID)
	assert.Equal(t, int64(1e9), int64(saved.DelayMin))

	rec = ts.do(t, http.MethodPost, "/api/campaigns/estimate", campaign)
	require.Equal(t, http.StatusOK, rec.Code)
	var estimate map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &estimate))
	assert.EqualValues(t, 3, estimate["items"])
	assert.EqualValues(t, 2, estimate["accounts"])

	// three items exceed the posting quota of two
	rec = ts.do(t, http.MethodPost, "/api/campaigns/weekly/run", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/campaigns/ghost/run", nil).Code)

	assert.JSONEq(t, `{"running":[]}`, ts.do(t, http.MethodGet, "/api/campaigns/running", nil).Body.String())
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/campaigns/weekly/stop", nil).Code)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, "/api/campaigns/weekly", nil).Code)
	assert.JSONEq(t, `[]`, ts.do(t, http.MethodGet, "/api/campaigns", nil).Body.String())
}

func TestHistoryAndQuotaEndpoints(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/history/unknown", nil).Code)
	assert.JSONEq(t, `[]`, ts.do(t, http.MethodGet, "/api/history/posting", nil).Body.String())

	rec := ts.do(t, http.MethodPost, "/api/quota/check", map[string]any{"count": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	var decision usecase.QuotaDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.False(t, decision.Allowed)

	rec = ts.do(t, http.MethodPost, "/api/quota/check", map[string]any{"count": 2})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.True(t, decision.Allowed)
	assert.Equal(t, 2, decision.Used)

	rec = ts.do(t, http.MethodGet, "/api/quota", nil)
	var usage []domain.QuotaCounter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Equal(t, []domain.QuotaCounter{{Kind: usecase.QuotaKindPosting, Max: 2, Used: 2}}, usage)
}

func TestWriteEvent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEvent(&buf, domain.Event{Type: domain.EventItemStatus, ItemID: "i1", Status: "SUCCEEDED"}))
	assert.Contains(t, buf.String(), "event: item_status\ndata: {")
	assert.Contains(t, buf.String(), `"item_id":"i1"`)
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n\n")))
}

func TestDashboardEndpoint(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/accounts/import", map[string]string{"text": "uid1|secret|Spring"}).Code)

	rec := ts.do(t, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats usecase.DashboardStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Accounts.Total)
	assert.Equal(t, 1, stats.Accounts.ByStatus[domain.AccountPending])
	assert.Equal(t, 1, stats.Accounts.ByProject["Spring"])
	assert.Contains(t, stats.History, domain.LogPosting)
	assert.Empty(t, stats.RunningCampaigns)
}

func TestHealthCheckEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/accounts/health-check/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stopped":false}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/accounts/health-check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
