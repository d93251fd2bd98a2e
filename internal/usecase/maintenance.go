package usecase

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/infrastructure/platform"
	"listing_orchestrator/internal/logger"
	"listing_orchestrator/internal/session"
)

// maintenanceJob is the registry key of the running ExecuteItems batch.
const maintenanceJob = "maintenance"

// sessionOpener acquires a session plus tokens for an account.
type sessionOpener struct {
	accounts domain.AccountRepository
	provider session.Provider
	tokens   TokenSource
	events   *EventBus
}

func (so sessionOpener) open(ctx context.Context, acc *domain.Account) (session.Session, platform.Tokens, error) {
	s, err := so.provider.Acquire(ctx, acc)
	if err != nil {
		markSessionFailure(so.accounts, so.events, acc, err)
		return nil, platform.Tokens{}, err
	}
	tok, err := so.tokens.Extract(ctx, s)
	if err != nil {
		_ = s.Close()
		return nil, tok, err
	}
	return s, tok, nil
}

// ScanReport is the combined result of ScanItems.
type ScanReport struct {
	Items    []domain.ScannedItem `json:"items"`
	Failures map[string]string    `json:"failures,omitempty"`
}

// Maintenance scans an account's own listings and renews, relists or deletes them.
type Maintenance struct {
	config   *config.Config
	opener   sessionOpener
	remote   RemoteCaller
	scanner  *Scanner
	history  domain.HistoryRepository
	events   *EventBus
	registry *CampaignRegistry
	sleep    Sleeper
	jitter   *jitter
}

// NewMaintenance creates a Maintenance service. registry is shared with the
// orchestrator so stop requests use one lifecycle.
func NewMaintenance(cfg *config.Config, deps Deps, scanner *Scanner, registry *CampaignRegistry) *Maintenance {
	if deps.Events == nil {
		deps.Events = NewEventBus(cfg.EventBufferSize)
	}
	if registry == nil {
		registry = NewCampaignRegistry()
	}
	return &Maintenance{
		config:   cfg,
		opener:   sessionOpener{accounts: deps.Accounts, provider: deps.Provider, tokens: deps.Tokens, events: deps.Events},
		remote:   deps.Remote,
		scanner:  scanner,
		history:  deps.History,
		events:   deps.Events,
		registry: registry,
		sleep:    SleepContext,
		jitter:   newJitter(),
	}
}

// SetSleeper replaces the wait used between items.
func (mt *Maintenance) SetSleeper(s Sleeper) {
	if s != nil {
		mt.sleep = s
	}
}

func (mt *Maintenance) concurrency() int {
	if mt.config.Concurrency > 0 {
		return mt.config.Concurrency
	}
	return 1
}

func (mt *Maintenance) sellingTarget(kind domain.ScanKind) ScanTarget {
	return ScanTarget{
		Kind:      kind,
		URL:       mt.config.SurfaceURLs["selling"],
		Signature: mt.config.QuerySignatures["selling"],
		Op:        platform.OpSellingQuery,
		Shape:     platform.SellingShape,
	}
}

// ScanItems harvests the listings of each account that are eligible for kind.
// A failing account is reported in Failures and does not stop the others.
func (mt *Maintenance) ScanItems(ctx context.Context, accountIDs []string, kind domain.ScanKind) (ScanReport, error) {
	switch kind {
	case domain.ScanRenew, domain.ScanRelist, domain.ScanViolations:
	default:
		return ScanReport{}, &domain.ValidationError{Field: "kind", Message: fmt.Sprintf("unsupported scan kind %q", kind)}
	}
	if len(accountIDs) == 0 {
		return ScanReport{}, &domain.ValidationError{Field: "account_ids", Message: "at least one account is required"}
	}
	accounts, err := mt.opener.accounts.GetByIDs(accountIDs)
	if err != nil {
		return ScanReport{}, fmt.Errorf("failed to load accounts: %w", err)
	}

	perAccount := make([][]domain.ScannedItem, len(accounts))
	failures := make([]error, len(accounts))
	var g errgroup.Group
	g.SetLimit(mt.concurrency())
	for i, acc := range accounts {
		g.Go(func() error {
			perAccount[i], failures[i] = mt.scanAccount(ctx, acc, kind, i, len(accounts))
			return nil
		})
	}
	_ = g.Wait()

	report := ScanReport{Failures: map[string]string{}}
	seen := make(map[string]bool)
	for i, acc := range accounts {
		if failures[i] != nil {
			report.Failures[acc.ID] = failures[i].Error()
			continue
		}
		for _, item := range perAccount[i] {
			if !seen[item.ID] {
				seen[item.ID] = true
				report.Items = append(report.Items, item)
			}
		}
	}
	return report, nil
}

func (mt *Maintenance) scanAccount(ctx context.Context, acc *domain.Account, kind domain.ScanKind, index, total int) ([]domain.ScannedItem, error) {
	s, tok, err := mt.opener.open(ctx, acc)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	res, err := mt.scanner.Scan(ctx, s, tok, mt.sellingTarget(kind))
	if err != nil {
		return nil, err
	}
	var items []domain.ScannedItem
	for _, n := range res.Nodes {
		if !matchesKind(kind, n) {
			continue
		}
		items = append(items, domain.ScannedItem{
			ID:        n.ID,
			AccountID: acc.ID,
			Kind:      kind,
			Title:     n.Title,
			Price:     n.Price,
			Status:    n.Status,
			URL:       platform.ListingURL(mt.config.PlatformBaseURL, firstNonEmpty(n.URL, n.ID)),
		})
	}

	logger.Info("Scan finished",
		zap.String("account_id", acc.ID),
		zap.String("kind", string(kind)),
		zap.String("strategy", res.Strategy),
		zap.Int("eligible", len(items)))
	appendHistory(mt.history, domain.LogOptimize, &domain.HistoryEntry{
		AccountID: acc.ID,
		TargetRef: string(kind),
		Outcome:   "SCANNED",
		Message:   fmt.Sprintf("%d eligible of %d", len(items), len(res.Nodes)),
		Data:      map[string]string{"strategy": res.Strategy, "found": strconv.Itoa(len(res.Nodes))},
	})
	mt.events.Publish(domain.Event{
		Type:         domain.EventScanProgress,
		AccountID:    acc.ID,
		Status:       string(kind),
		Message:      fmt.Sprintf("%d items", len(items)),
		CurrentIndex: index + 1,
		Total:        total,
	})
	return items, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ExecuteItems applies action to every item. Items of one account run in
// order over one session with a random delay in between; accounts run on the
// bounded pool. Outcomes come back in input order.
func (mt *Maintenance) ExecuteItems(ctx context.Context, items []domain.ScannedItem, delay DelayRange, action domain.ItemAction) ([]domain.ItemOutcome, error) {
	op, err := actionOp(action)
	if err != nil {
		return nil, err
	}
	flag, release, ok := mt.registry.Register(maintenanceJob)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCampaignRunning, maintenanceJob)
	}
	defer release()

	outcomes := make([]domain.ItemOutcome, len(items))
	var order []string
	byAccount := make(map[string][]int)
	for i, it := range items {
		outcomes[i] = domain.ItemOutcome{ItemID: it.ID, AccountID: it.AccountID, State: domain.ItemQueued}
		if _, ok := byAccount[it.AccountID]; !ok {
			order = append(order, it.AccountID)
		}
		byAccount[it.AccountID] = append(byAccount[it.AccountID], i)
	}

	var g errgroup.Group
	g.SetLimit(mt.concurrency())
	for _, accountID := range order {
		indexes := byAccount[accountID]
		g.Go(func() error {
			mt.executeAccount(ctx, accountID, items, indexes, outcomes, delay, op, action, flag)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}

func (mt *Maintenance) executeAccount(ctx context.Context, accountID string, items []domain.ScannedItem, indexes []int, outcomes []domain.ItemOutcome, delay DelayRange, op string, action domain.ItemAction, flag *AbortFlag) {
	endRest := func(from int, state domain.ItemState, msg string) {
		for _, idx := range indexes[from:] {
			outcomes[idx].State, outcomes[idx].Message = state, msg
			mt.recordOutcome(items[idx], action, outcomes[idx])
		}
	}
	acc, err := mt.opener.accounts.GetByID(accountID)
	if err != nil || acc == nil {
		endRest(0, domain.ItemFailed, "account not found")
		return
	}
	s, tok, err := mt.opener.open(ctx, acc)
	if err != nil {
		endRest(0, domain.ItemFailed, err.Error())
		return
	}
	defer s.Close()

	for n, idx := range indexes {
		if flag.Raised() {
			endRest(n, domain.ItemAborted, domain.ErrAborted.Error())
			return
		}
		if n > 0 {
			if err := mt.sleep(ctx, mt.jitter.between(delay.Min, delay.Max)); err != nil {
				endRest(n, domain.ItemAborted, err.Error())
				return
			}
			if flag.Raised() {
				endRest(n, domain.ItemAborted, domain.ErrAborted.Error())
				return
			}
		}
		outcomes[idx] = mt.executeItem(ctx, s, tok, items[idx], op, action)
	}
}

// ExecuteItem applies action to a single item over its own session.
func (mt *Maintenance) ExecuteItem(ctx context.Context, item domain.ScannedItem, action domain.ItemAction) (domain.ItemOutcome, error) {
	op, err := actionOp(action)
	if err != nil {
		return domain.ItemOutcome{}, err
	}
	acc, err := mt.opener.accounts.GetByID(item.AccountID)
	if err != nil {
		return domain.ItemOutcome{}, fmt.Errorf("failed to load account: %w", err)
	}
	if acc == nil {
		return domain.ItemOutcome{}, fmt.Errorf("account %s: %w", item.AccountID, domain.ErrNotFound)
	}
	s, tok, err := mt.opener.open(ctx, acc)
	if err != nil {
		return domain.ItemOutcome{}, err
	}
	defer s.Close()
	return mt.executeItem(ctx, s, tok, item, op, action), nil
}

// StopExecution aborts the running ExecuteItems batch.
func (mt *Maintenance) StopExecution() bool {
	return mt.registry.Abort(maintenanceJob)
}

// executeItem is shared by the single and bulk entry points.
func (mt *Maintenance) executeItem(ctx context.Context, s session.Session, tok platform.Tokens, item domain.ScannedItem, op string, action domain.ItemAction) domain.ItemOutcome {
	out := domain.ItemOutcome{ItemID: item.ID, AccountID: item.AccountID, State: domain.ItemSucceeded}
	if _, err := mt.remote.Call(ctx, s, tok, op, platform.ListingActionVariables(tok.ActorID, item.ID)); err != nil {
		out.State, out.Message = domain.ItemFailed, err.Error()
		logger.Warn("Listing action failed",
			zap.String("account_id", item.AccountID),
			zap.String("item_id", item.ID),
			zap.String("action", string(action)),
			zap.Error(err))
	}
	mt.recordOutcome(item, action, out)
	return out
}

// recordOutcome appends a terminal item outcome to history and streams it.
func (mt *Maintenance) recordOutcome(item domain.ScannedItem, action domain.ItemAction, out domain.ItemOutcome) {
	appendHistory(mt.history, domain.LogOptimize, &domain.HistoryEntry{
		AccountID: item.AccountID,
		TargetRef: item.ID,
		Outcome:   string(out.State),
		Message:   out.Message,
		URL:       item.URL,
		Data:      map[string]string{"action": string(action), "title": item.Title},
	})
	mt.events.Publish(domain.Event{
		Type:      domain.EventItemStatus,
		AccountID: item.AccountID,
		ItemID:    item.ID,
		Status:    string(out.State),
		Message:   out.Message,
	})
}

func actionOp(action domain.ItemAction) (string, error) {
	switch action {
	case domain.ActionRenew:
		return platform.OpRenewListing, nil
	case domain.ActionRelist:
		return platform.OpRelistListing, nil
	case domain.ActionDelete:
		return platform.OpDeleteListing, nil
	}
	return "", &domain.ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", action)}
}
