package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/infrastructure/platform"
	"listing_orchestrator/internal/repository/collection"
	"listing_orchestrator/internal/repository/memory"
	"listing_orchestrator/internal/session"
)

func assign(out, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

type fakeSession struct {
	mu          sync.Mutex
	scripts     []string
	scriptCalls int
	inputs      map[string]string
	cookies     map[string]string
	content     string
	location    string
	evalResult  any
	steps       [][]session.CapturedResponse
	scrolls     int
	navigated   []string
	closed      bool
	onClose     func()
}

func (f *fakeSession) Navigate(_ context.Context, url string, _ session.NavigatePolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakeSession) CurrentLocation(context.Context) (string, error) { return f.location, nil }

func (f *fakeSession) Evaluate(_ context.Context, expr string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case expr == scriptTextExpr:
		text := ""
		if len(f.scripts) > 0 {
			text = f.scripts[min(f.scriptCalls, len(f.scripts)-1)]
		}
		f.scriptCalls++
		return assign(out, text)
	case strings.HasPrefix(expr, "((document.querySelector("):
		for sel, v := range f.inputs {
			if strings.Contains(expr, sel) {
				return assign(out, v)
			}
		}
		return assign(out, "")
	case f.evalResult != nil:
		return assign(out, f.evalResult)
	}
	return errors.New("unexpected expression")
}

func (f *fakeSession) ExtractCookie(_ context.Context, name string) (string, error) {
	return f.cookies[name], nil
}

func (f *fakeSession) Cookies(context.Context) ([]session.Cookie, error) {
	var out []session.Cookie
	for k, v := range f.cookies {
		out = append(out, session.Cookie{Name: k, Value: v})
	}
	return out, nil
}

func (f *fakeSession) Content(context.Context) (string, error) { return f.content, nil }

func (f *fakeSession) Fetch(context.Context, session.Request) (*session.Response, error) {
	return nil, errors.New("fetch not scripted")
}

// CapturedResponses exposes one more step per scroll.
func (f *fakeSession) CapturedResponses(signature string) []session.CapturedResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []session.CapturedResponse
	for i := 0; i < len(f.steps) && i <= f.scrolls; i++ {
		for _, r := range f.steps[i] {
			if strings.Contains(r.URL, signature) || strings.Contains(r.RequestBody, signature) {
				out = append(out, r)
			}
		}
	}
	return out
}

func (f *fakeSession) Scroll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolls++
	return nil
}

func (f *fakeSession) Fill(context.Context, string, string) error { return nil }
func (f *fakeSession) Click(context.Context, string) error        { return nil }
func (f *fakeSession) Identity() session.Identity                 { return session.Identity{UserAgent: "test-agent"} }

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed && f.onClose != nil {
		f.onClose()
	}
	f.closed = true
	return nil
}

type fakeProvider struct {
	mu        sync.Mutex
	sessions  map[string]*fakeSession
	errs      map[string]error
	acquired  []string
	active    int
	maxActive int
	onAcquire func(accountID string)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: map[string]*fakeSession{}, errs: map[string]error{}}
}

func (p *fakeProvider) Acquire(_ context.Context, acc *domain.Account) (session.Session, error) {
	p.mu.Lock()
	p.acquired = append(p.acquired, acc.ID)
	if err := p.errs[acc.ID]; err != nil {
		p.mu.Unlock()
		return nil, err
	}
	s := p.sessions[acc.ID]
	if s == nil {
		s = &fakeSession{}
		p.sessions[acc.ID] = s
	}
	p.active++
	p.maxActive = max(p.maxActive, p.active)
	s.onClose = func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}
	hook := p.onAcquire
	p.mu.Unlock()
	if hook != nil {
		hook(acc.ID)
	}
	// Let concurrently admitted accounts overlap.
	time.Sleep(5 * time.Millisecond)
	return s, nil
}

func (p *fakeProvider) peak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxActive
}

type fakeTokens struct {
	mu    sync.Mutex
	tok   platform.Tokens
	err   error
	errs  []error // consumed by the first calls
	calls int
}

func (f *fakeTokens) Extract(context.Context, session.Session) (platform.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return platform.Tokens{}, err
	}
	if f.err != nil {
		return platform.Tokens{}, f.err
	}
	return f.tok, nil
}

type remoteCall struct {
	op   string
	vars map[string]any
}

type fakeRemote struct {
	mu      sync.Mutex
	calls   []remoteCall
	respond func(op string, vars map[string]any) ([]byte, error)
	onCall  func(op string)
}

func (f *fakeRemote) Call(_ context.Context, _ session.Session, _ platform.Tokens, op string, variables any) ([]byte, error) {
	vars, _ := variables.(map[string]any)
	f.mu.Lock()
	f.calls = append(f.calls, remoteCall{op: op, vars: vars})
	respond, hook := f.respond, f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(op)
	}
	if respond == nil {
		return nil, fmt.Errorf("%s not scripted", op)
	}
	return respond(op, vars)
}

func (f *fakeRemote) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.op)
	}
	return out
}

func (f *fakeRemote) count(op string) int {
	n := 0
	for _, o := range f.ops() {
		if o == op {
			n++
		}
	}
	return n
}

type fakeUploader struct {
	mu    sync.Mutex
	fail  map[string]bool
	paths []string
}

func (f *fakeUploader) Upload(_ context.Context, _ session.Session, _ platform.Tokens, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if f.fail[path] {
		return "", errors.New("upload rejected")
	}
	return fmt.Sprintf("up-%d", len(f.paths)), nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	slept  []time.Duration
	onCall func()
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.slept = append(r.slept, d)
	hook := r.onCall
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ctx.Err()
}

func (r *sleepRecorder) durations() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.slept...)
}

func createdBody(id string, photoIDs ...string) []byte {
	photos := make([]map[string]string, 0, len(photoIDs))
	for _, p := range photoIDs {
		photos = append(photos, map[string]string{"id": p})
	}
	body, _ := json.Marshal(map[string]any{
		"data": map[string]any{
			platform.FieldCreate: map[string]any{
				"listing": map[string]any{
					"id":             id,
					"story":          map[string]string{"url": "https://market.test/item/" + id},
					"listing_photos": photos,
				},
			},
		},
	})
	return body
}

func storyBody(postID, url string) []byte {
	story := map[string]string{"post_id": postID}
	if url != "" {
		story["url"] = url
	}
	body, _ := json.Marshal(map[string]any{
		"data": map[string]any{platform.FieldStoryCreate: map[string]any{"story": story}},
	})
	return body
}

func sellingBody(cursor string, hasNext bool, ids ...string) string {
	edges := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		edges = append(edges, map[string]any{"node": map[string]any{
			"id":                        id,
			"marketplace_listing_title": "title " + id,
			"can_renew":                 true,
		}})
	}
	body, _ := json.Marshal(map[string]any{
		"data": map[string]any{"viewer": map[string]any{
			"marketplace_listing_sets": map[string]any{
				"edges":     edges,
				"page_info": map[string]any{"end_cursor": cursor, "has_next_page": hasNext},
			},
		}},
	})
	return string(body)
}

func testConfig() *config.Config {
	return &config.Config{
		PlatformBaseURL:      "https://market.test",
		PlatformCreateURL:    "https://market.test/marketplace/create/item",
		LimitMarkers:         []string{"limit reached"},
		SurfaceURLs:          map[string]string{"selling": "https://market.test/selling", "search": "https://market.test/search", "groups": "https://market.test/groups", "locations": "https://market.test/marketplace"},
		QuerySignatures:      map[string]string{"selling": "SellingQuery", "search": "SearchQuery", "groups": "GroupsQuery", "locations": "LocationQuery"},
		Concurrency:          2,
		DelayMin:             time.Second,
		DelayMax:             time.Second,
		TokenAttempts:        3,
		TokenRetryDelay:      2 * time.Second,
		TokenRefreshEvery:    15,
		SettleDelay:          5 * time.Second,
		LaunchDelay:          2 * time.Second,
		UploadGapMin:         500 * time.Millisecond,
		UploadGapMax:         500 * time.Millisecond,
		EventBufferSize:      1024,
		ValidationConcurrent: 2,
		ScanMaxNoGrowth:      2,
		ScanMaxScrolls:       20,
		ScanScrollPause:      time.Second,
		Currency:             "USD",
		DefaultCategory:      "misc",
		DefaultCondition:     "new",
	}
}

type testEnv struct {
	cfg       *config.Config
	store     *memory.Store
	accounts  *collection.AccountRepository
	materials *collection.MaterialRepository
	campaigns *collection.CampaignRepository
	history   *collection.HistoryRepository
	locations *collection.LocationRepository
	groups    *collection.GroupRepository
	quota     *collection.QuotaRepository
	provider  *fakeProvider
	tokens    *fakeTokens
	remote    *fakeRemote
	uploader  *fakeUploader
	sleeper   *sleepRecorder
	events    *EventBus
	publisher *Publisher
	orch      *Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	e := &testEnv{
		cfg:       testConfig(),
		store:     store,
		accounts:  collection.NewAccountRepository(store),
		materials: collection.NewMaterialRepository(store),
		campaigns: collection.NewCampaignRepository(store),
		history:   collection.NewHistoryRepository(store, 0),
		locations: collection.NewLocationRepository(store),
		groups:    collection.NewGroupRepository(store),
		quota:     collection.NewQuotaRepository(store),
		provider:  newFakeProvider(),
		tokens:    &fakeTokens{tok: platform.Tokens{CSRF: "csrf", ActorID: "100"}},
		remote: &fakeRemote{respond: func(op string, _ map[string]any) ([]byte, error) {
			return createdBody("L1", "P1"), nil
		}},
		uploader: &fakeUploader{fail: map[string]bool{}},
		sleeper:  &sleepRecorder{},
		events:   NewEventBus(1024),
	}
	e.publisher = NewPublisher(e.remote, e.uploader, e.locations, PublisherOptionsFrom(e.cfg))
	e.publisher.SetSleeper(e.sleeper.sleep)
	e.orch = NewOrchestrator(e.cfg, e.deps())
	e.orch.SetSleeper(e.sleeper.sleep)
	return e
}

func (e *testEnv) deps() Deps {
	return Deps{
		Accounts:  e.accounts,
		Materials: e.materials,
		Campaigns: e.campaigns,
		Groups:    e.groups,
		History:   e.history,
		Provider:  e.provider,
		Tokens:    e.tokens,
		Publisher: e.publisher,
		Remote:    e.remote,
		Events:    e.events,
	}
}

func (e *testEnv) addAccounts(t *testing.T, logins ...string) []string {
	t.Helper()
	var ids []string
	for _, login := range logins {
		acc := &domain.Account{ID: "acc-" + login, ExternalLoginID: login, Status: domain.AccountActive, SessionHandle: "h-" + login}
		require.NoError(t, e.accounts.Save(acc))
		ids = append(ids, acc.ID)
	}
	return ids
}

func (e *testEnv) addMaterials(t *testing.T, n int, photos int) []string {
	t.Helper()
	var ids []string
	var ms []*domain.Material
	for i := 0; i < n; i++ {
		m := &domain.Material{ID: fmt.Sprintf("mat-%02d", i), Title: fmt.Sprintf("Item %d", i), Price: "Rp 150.000"}
		for p := 0; p < photos; p++ {
			m.PhotoPaths = append(m.PhotoPaths, fmt.Sprintf("/photos/%d-%d.jpg", i, p))
		}
		ms = append(ms, m)
		ids = append(ids, m.ID)
	}
	require.NoError(t, e.materials.AddMany(ms))
	return ids
}
