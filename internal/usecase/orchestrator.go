package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/infrastructure/platform"
	"listing_orchestrator/internal/logger"
	"listing_orchestrator/internal/metrics"
	"listing_orchestrator/internal/session"
)

// Quota kinds consumed by campaign work items.
const (
	QuotaKindPosting   = "posting"
	QuotaKindGroupPost = "group-post"
)

// ReasonAccountLimited fails the remaining items of an account that hit its daily limit.
const ReasonAccountLimited = "account limited"

// Skip reasons of group work items.
const (
	ReasonGroupNotFound  = "group not found"
	ReasonGroupNotJoined = "group belongs to another account"
)

// TokenSource extracts the per-session tokens.
type TokenSource interface {
	Extract(ctx context.Context, s session.Session) (platform.Tokens, error)
}

// Deps are the collaborators of the Orchestrator.
type Deps struct {
	Accounts  domain.AccountRepository
	Materials domain.MaterialRepository
	Campaigns domain.CampaignRepository
	Groups    domain.GroupRepository
	History   domain.HistoryRepository
	Provider  session.Provider
	Tokens    TokenSource
	Publisher *Publisher
	Remote    RemoteCaller
	Quota     *QuotaChecker
	Events    *EventBus
}

// Orchestrator runs campaigns: one sequential worker per account, a bounded
// number of accounts at a time.
type Orchestrator struct {
	config   *config.Config
	deps     Deps
	registry *CampaignRegistry
	sleep    Sleeper
	jitter   *jitter
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(cfg *config.Config, deps Deps) *Orchestrator {
	if deps.Events == nil {
		deps.Events = NewEventBus(cfg.EventBufferSize)
	}
	return &Orchestrator{
		config:   cfg,
		deps:     deps,
		registry: NewCampaignRegistry(),
		sleep:    SleepContext,
		jitter:   newJitter(),
	}
}

// SetSleeper replaces the wait used between items.
func (o *Orchestrator) SetSleeper(s Sleeper) {
	if s != nil {
		o.sleep = s
	}
}

// Events returns the progress event bus.
func (o *Orchestrator) Events() *EventBus { return o.deps.Events }

// Registry returns the live campaign registry.
func (o *Orchestrator) Registry() *CampaignRegistry { return o.registry }

// CampaignHandle tracks an asynchronously running campaign.
type CampaignHandle struct {
	ID      string
	done    chan struct{}
	summary domain.Summary
	err     error
}

// Done is closed when the campaign terminated.
func (h *CampaignHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the campaign terminated and returns its summary.
func (h *CampaignHandle) Wait() (domain.Summary, error) {
	<-h.done
	return h.summary, h.err
}

// campaignRun is the in-memory state of one run.
type campaignRun struct {
	campaign  *domain.Campaign
	flag      *AbortFlag
	items     []*domain.WorkItem
	accounts  map[string]*domain.Account
	materials map[string]*domain.Material
	groups    map[string]*domain.GroupTarget
	delay     DelayRange

	mu        sync.Mutex
	completed int
}

func (r *campaignRun) checkpoint() error {
	if r.flag.Raised() {
		return domain.ErrAborted
	}
	return nil
}

// StartCampaign validates the campaign, checks the posting quota and starts it
// in the background. Nothing is executed when an error is returned.
func (o *Orchestrator) StartCampaign(ctx context.Context, c *domain.Campaign) (*CampaignHandle, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Mode == "" {
		c.Mode = domain.ModeStandard
	}

	items := c.ExpandWorkItems()
	if len(items) == 0 {
		return nil, &domain.ValidationError{Field: "distribution", Message: "campaign expands to no work items"}
	}

	accounts, err := o.deps.Accounts.GetByIDs(c.AccountIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	materials, err := o.deps.Materials.GetByIDs(materialIDs(items))
	if err != nil {
		return nil, fmt.Errorf("failed to load materials: %w", err)
	}
	groups, err := o.loadGroups(c)
	if err != nil {
		return nil, err
	}

	flag, release, ok := o.registry.Register(c.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCampaignRunning, c.ID)
	}
	if o.deps.Quota != nil {
		kind := QuotaKindPosting
		if c.PostsToGroups() {
			kind = QuotaKindGroupPost
		}
		if err := o.deps.Quota.Admit(kind, len(items)); err != nil {
			release()
			return nil, err
		}
	}

	run := &campaignRun{
		campaign:  c,
		flag:      flag,
		items:     items,
		accounts:  make(map[string]*domain.Account, len(accounts)),
		materials: make(map[string]*domain.Material, len(materials)),
		groups:    groups,
		delay:     DelayRange{Min: c.DelayMin, Max: c.DelayMax},
	}
	for _, a := range accounts {
		run.accounts[a.ID] = a
	}
	for _, m := range materials {
		run.materials[m.ID] = m
	}
	if run.delay.Min == 0 && run.delay.Max == 0 {
		run.delay = DelayRange{Min: o.config.DelayMin, Max: o.config.DelayMax}
	}

	handle := &CampaignHandle{ID: c.ID, done: make(chan struct{})}
	go func() {
		defer close(handle.done)
		defer release()
		handle.summary, handle.err = o.run(ctx, run)
	}()
	return handle, nil
}

// RunCampaign starts the campaign and waits for its summary.
func (o *Orchestrator) RunCampaign(ctx context.Context, c *domain.Campaign) (domain.Summary, error) {
	h, err := o.StartCampaign(ctx, c)
	if err != nil {
		return domain.Summary{}, err
	}
	return h.Wait()
}

// RunStoredCampaign runs the stored campaign with the given id.
func (o *Orchestrator) RunStoredCampaign(ctx context.Context, id string) (domain.Summary, error) {
	if o.deps.Campaigns == nil {
		return domain.Summary{}, fmt.Errorf("campaign %s: %w", id, domain.ErrNotFound)
	}
	c, err := o.deps.Campaigns.GetByID(id)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("failed to load campaign: %w", err)
	}
	if c == nil {
		return domain.Summary{}, fmt.Errorf("campaign %s: %w", id, domain.ErrNotFound)
	}
	return o.RunCampaign(ctx, c)
}

// StopCampaign raises the abort flag of a running campaign.
func (o *Orchestrator) StopCampaign(id string) bool {
	stopped := o.registry.Abort(id)
	if stopped {
		logger.Info("Campaign stop requested", zap.String("campaign_id", id))
	}
	return stopped
}

// RunningCampaigns lists the ids of running campaigns.
func (o *Orchestrator) RunningCampaigns() []string {
	return o.registry.Running()
}

// loadGroups indexes the stored group targets a group campaign names.
func (o *Orchestrator) loadGroups(c *domain.Campaign) (map[string]*domain.GroupTarget, error) {
	if !c.PostsToGroups() {
		return nil, nil
	}
	if o.deps.Groups == nil {
		return nil, &domain.ValidationError{Field: "destination", Message: "group targets are not available"}
	}
	stored, err := o.deps.Groups.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}
	wanted := make(map[string]bool, len(c.GroupIDs))
	for _, id := range c.GroupIDs {
		wanted[id] = true
	}
	groups := make(map[string]*domain.GroupTarget, len(c.GroupIDs))
	for _, g := range stored {
		if wanted[g.ID] {
			groups[g.ID] = g
		}
	}
	return groups, nil
}

func materialIDs(items []*domain.WorkItem) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, it := range items {
		if !seen[it.MaterialID] {
			seen[it.MaterialID] = true
			ids = append(ids, it.MaterialID)
		}
	}
	return ids
}

// groupByAccount keeps campaign order of accounts and list order of items.
func groupByAccount(items []*domain.WorkItem) ([]string, map[string][]*domain.WorkItem) {
	var order []string
	groups := make(map[string][]*domain.WorkItem)
	for _, it := range items {
		if _, ok := groups[it.AccountID]; !ok {
			order = append(order, it.AccountID)
		}
		groups[it.AccountID] = append(groups[it.AccountID], it)
	}
	return order, groups
}

func (o *Orchestrator) concurrency(c *domain.Campaign) int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	if o.config.Concurrency > 0 {
		return o.config.Concurrency
	}
	return 1
}

func (o *Orchestrator) run(ctx context.Context, run *campaignRun) (domain.Summary, error) {
	c := run.campaign
	metrics.CampaignsRunning.Inc()
	defer metrics.CampaignsRunning.Dec()

	logger.Info("Campaign started",
		zap.String("campaign_id", c.ID),
		zap.String("mode", string(c.Mode)),
		zap.Bool("groups", c.PostsToGroups()),
		zap.Int("items", len(run.items)),
		zap.Int("accounts", len(c.AccountIDs)))
	o.deps.Events.Publish(domain.Event{Type: domain.EventCampaignStarted, CampaignID: c.ID, Total: len(run.items)})

	order, groups := groupByAccount(run.items)
	var g errgroup.Group
	g.SetLimit(o.concurrency(c))
	for _, accountID := range order {
		items := groups[accountID]
		// Go blocks while the limit is reached; admission is first-free-slot.
		g.Go(func() error {
			o.runAccount(ctx, run, accountID, items)
			return nil
		})
	}
	_ = g.Wait()

	summary := domain.Summary{CampaignID: c.ID, Total: len(run.items)}
	for _, it := range run.items {
		if !it.State.Terminal() {
			o.finish(run, it, domain.ItemAborted, "not executed", "")
		}
		summary.Add(it.State)
	}

	logger.Info("Campaign finished",
		zap.String("campaign_id", c.ID),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("aborted", summary.Aborted),
		zap.Bool("stopped", run.flag.Raised()))
	o.deps.Events.Publish(domain.Event{
		Type:         domain.EventCampaignFinished,
		CampaignID:   c.ID,
		Status:       fmt.Sprintf("%d/%d succeeded", summary.Succeeded, summary.Total),
		CurrentIndex: summary.Total,
		Total:        summary.Total,
	})
	return summary, nil
}

// accountWorker processes one account's items in order over one session.
type accountWorker struct {
	o            *Orchestrator
	run          *campaignRun
	account      *domain.Account
	items        []*domain.WorkItem
	session      session.Session
	tokens       platform.Tokens
	haveToken    bool
	limitChecked bool
	processed    int
}

func (o *Orchestrator) runAccount(ctx context.Context, run *campaignRun, accountID string, items []*domain.WorkItem) {
	w := &accountWorker{o: o, run: run, account: run.accounts[accountID], items: items}
	defer func() {
		if w.session != nil {
			if err := w.session.Close(); err != nil {
				logger.Warn("Failed to close session", zap.String("account_id", accountID), zap.Error(err))
			}
		}
	}()

	for _, it := range items {
		_ = it.Transition(domain.ItemAssigned)
	}
	if w.account == nil {
		w.failFrom(0, domain.ItemFailed, "account not found")
		return
	}

	for i, it := range items {
		if run.flag.Raised() {
			w.failFrom(i, domain.ItemAborted, domain.ErrAborted.Error())
			return
		}
		if ctx.Err() != nil {
			w.failFrom(i, domain.ItemAborted, ctx.Err().Error())
			return
		}
		if i > 0 {
			if err := o.sleep(ctx, o.jitter.between(run.delay.Min, run.delay.Max)); err != nil {
				w.failFrom(i, domain.ItemAborted, err.Error())
				return
			}
			if run.flag.Raised() {
				w.failFrom(i, domain.ItemAborted, domain.ErrAborted.Error())
				return
			}
		}
		if stop := w.process(ctx, i, it); stop {
			return
		}
	}
}

// process runs one item. It reports true when the rest of the account must stop.
func (w *accountWorker) process(ctx context.Context, i int, it *domain.WorkItem) bool {
	o, run := w.o, w.run

	m := run.materials[it.MaterialID]
	if m == nil {
		o.finish(run, it, domain.ItemSkipped, "material not found", "")
		return false
	}
	if err := m.Validate(); err != nil {
		o.finish(run, it, domain.ItemSkipped, err.Error(), "")
		return false
	}
	var group *domain.GroupTarget
	if run.campaign.PostsToGroups() {
		group = run.groups[it.GroupID]
		switch {
		case group == nil:
			o.finish(run, it, domain.ItemSkipped, ReasonGroupNotFound, "")
			return false
		case group.AccountID != "" && group.AccountID != w.account.ID:
			o.finish(run, it, domain.ItemSkipped, ReasonGroupNotJoined, "")
			return false
		}
	}

	if w.session == nil {
		_ = it.Transition(domain.ItemAwaitingSession)
		s, err := o.deps.Provider.Acquire(ctx, w.account)
		if err != nil {
			o.recordSessionFailure(w.account, err)
			w.failFrom(i, domain.ItemFailed, err.Error())
			return true
		}
		w.session = s
		if err := run.checkpoint(); err != nil {
			w.failFrom(i, domain.ItemAborted, err.Error())
			return true
		}
	}

	if !w.haveToken || (w.processed > 0 && w.processed%o.refreshEvery() == 0) {
		_ = it.Transition(domain.ItemTokenExtracting)
		tok, err := o.deps.Tokens.Extract(ctx, w.session)
		if err != nil {
			w.haveToken = false
			w.processed++
			o.finish(run, it, domain.ItemFailed, err.Error(), "")
			return false
		}
		w.tokens, w.haveToken = tok, true
		if err := run.checkpoint(); err != nil {
			w.failFrom(i, domain.ItemAborted, err.Error())
			return true
		}
	}

	if !w.limitChecked && group == nil {
		w.limitChecked = true
		limited, err := o.checkLimit(ctx, w.session)
		if err != nil {
			logger.Warn("Limit check failed", zap.String("account_id", w.account.ID), zap.Error(err))
		}
		if limited {
			logger.Warn("Account reached its daily limit", zap.String("account_id", w.account.ID))
			w.failFrom(i, domain.ItemFailed, ReasonAccountLimited)
			return true
		}
	}

	_ = it.Transition(domain.ItemExecuting)
	var pub Publication
	var err error
	if group != nil {
		pub, err = o.deps.Publisher.PostToGroup(ctx, w.session, w.tokens, m, group.ID, run.checkpoint)
	} else {
		pub, err = o.deps.Publisher.Publish(ctx, w.session, w.tokens, m, run.campaign.Mode, run.campaign.HideFromFriends, run.checkpoint)
	}
	w.processed++
	switch {
	case err == nil:
		o.finish(run, it, domain.ItemSucceeded, "", pub.URL)
	case errors.Is(err, domain.ErrAborted):
		w.failFrom(i, domain.ItemAborted, err.Error())
		return true
	default:
		o.finish(run, it, domain.ItemFailed, err.Error(), "")
	}
	return false
}

// failFrom ends items[from:] that are not terminal yet.
func (w *accountWorker) failFrom(from int, state domain.ItemState, reason string) {
	for _, it := range w.items[from:] {
		if !it.State.Terminal() {
			w.o.finish(w.run, it, state, reason, "")
		}
	}
}

func (o *Orchestrator) refreshEvery() int {
	if o.config.TokenRefreshEvery > 0 {
		return o.config.TokenRefreshEvery
	}
	return 15
}

// checkLimit looks for a daily-limit marker on the creation surface.
func (o *Orchestrator) checkLimit(ctx context.Context, s session.Session) (bool, error) {
	if o.config.PlatformCreateURL == "" || len(o.config.LimitMarkers) == 0 {
		return false, nil
	}
	if err := s.Navigate(ctx, o.config.PlatformCreateURL, o.navigatePolicy()); err != nil {
		return false, err
	}
	markup, err := s.Content(ctx)
	if err != nil {
		return false, err
	}
	return containsMarker(markup, o.config.LimitMarkers), nil
}

func (o *Orchestrator) navigatePolicy() session.NavigatePolicy {
	p := session.DefaultNavigate
	if o.config.BrowserNavTimeout > 0 {
		p.Timeout = o.config.BrowserNavTimeout
	}
	return p
}

func containsMarker(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// recordSessionFailure updates the account for invalid or intervened sessions.
func (o *Orchestrator) recordSessionFailure(acc *domain.Account, err error) {
	markSessionFailure(o.deps.Accounts, o.deps.Events, acc, err)
}

// markSessionFailure records why no session could be had. Launch failures
// leave the account status alone.
func markSessionFailure(repo domain.AccountRepository, events *EventBus, acc *domain.Account, err error) {
	var se *domain.SessionError
	if !errors.As(err, &se) {
		return
	}
	metrics.SessionAcquireFailures.WithLabelValues(string(se.Kind)).Inc()
	logger.Warn("Session unavailable",
		zap.String("account_id", acc.ID),
		zap.String("kind", string(se.Kind)),
		zap.Error(err))

	now := time.Now()
	switch se.Kind {
	case domain.SessionInvalid, domain.SessionNoCredential:
		acc.MarkInvalid(err.Error(), now)
	case domain.SessionIntervention:
		acc.MarkCheckpoint(err.Error(), now)
	default:
		return
	}
	if saveErr := repo.Save(acc); saveErr != nil {
		logger.Error("Failed to save account status", zap.String("account_id", acc.ID), zap.Error(saveErr))
	}
	events.Publish(domain.Event{Type: domain.EventAccountStatus, AccountID: acc.ID, Status: string(acc.Status), Message: acc.InvalidReason})
}

// finish moves it to a terminal state and records the outcome.
func (o *Orchestrator) finish(run *campaignRun, it *domain.WorkItem, state domain.ItemState, reason, url string) {
	if err := it.Finish(state, reason); err != nil {
		logger.Error("Work item transition rejected", zap.String("item_id", it.ID), zap.Error(err))
		return
	}
	it.URL = url

	run.mu.Lock()
	run.completed++
	index := run.completed
	run.mu.Unlock()

	metrics.WorkItemsTotal.WithLabelValues(string(run.campaign.Mode), string(state)).Inc()

	entry := &domain.HistoryEntry{
		CampaignID: it.CampaignID,
		AccountID:  it.AccountID,
		TargetRef:  it.MaterialID,
		Outcome:    string(state),
		Message:    reason,
		URL:        url,
		Data:       map[string]string{"item_id": it.ID, "mode": string(run.campaign.Mode)},
	}
	if m := run.materials[it.MaterialID]; m != nil {
		entry.Data["title"] = m.Title
	}
	log := domain.LogPosting
	if run.campaign.PostsToGroups() {
		log = domain.LogGroupPost
		entry.Data["group_id"] = it.GroupID
		if g := run.groups[it.GroupID]; g != nil {
			entry.Data["group"] = g.Name
		}
	}
	o.appendHistory(log, entry)

	o.deps.Events.Publish(domain.Event{
		Type:         domain.EventItemStatus,
		CampaignID:   it.CampaignID,
		AccountID:    it.AccountID,
		ItemID:       it.ID,
		Status:       string(state),
		Message:      reason,
		CurrentIndex: index,
		Total:        len(run.items),
	})
	if state == domain.ItemFailed {
		logger.Warn("Work item failed", zap.String("item_id", it.ID), zap.String("account_id", it.AccountID), zap.String("reason", reason))
	}
}

func (o *Orchestrator) appendHistory(log domain.HistoryLog, entries ...*domain.HistoryEntry) {
	appendHistory(o.deps.History, log, entries...)
}

func appendHistory(repo domain.HistoryRepository, log domain.HistoryLog, entries ...*domain.HistoryEntry) {
	if repo == nil || len(entries) == 0 {
		return
	}
	if err := repo.Append(log, entries...); err != nil {
		logger.Error("Failed to append history", zap.String("log", string(log)), zap.Error(err))
		return
	}
	metrics.HistoryAppends.WithLabelValues(string(log)).Add(float64(len(entries)))
}
