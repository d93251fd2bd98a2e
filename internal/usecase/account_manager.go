package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/infrastructure/platform"
	"listing_orchestrator/internal/logger"
	"listing_orchestrator/internal/session"
)

// SessionStates persists cookie state behind account session handles.
type SessionStates interface {
	SaveState(ctx context.Context, accountID string, s session.Session) (string, error)
	ImportState(accountID string, cookies []session.Cookie) (string, error)
	DropState(accountID string) error
}

// SecretSealer encrypts credentials before they are stored.
type SecretSealer interface {
	Seal(plaintext string) (string, error)
}

// ImportResult counts the outcome of ImportAccounts.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ReasonCheckStopped is reported for accounts a stopped health check never reached.
const ReasonCheckStopped = "health check stopped"

const healthCheckID = "health-check"

// AccountCheck is the result of verifying one account.
type AccountCheck struct {
	AccountID string               `json:"account_id"`
	Status    domain.AccountStatus `json:"status"`
	Reason    string               `json:"reason,omitempty"`
}

const profileExpr = `(() => {
	const h = document.querySelector("h1");
	const img = document.querySelector("svg image, img[data-imgperflogname], img[alt]");
	const badge = document.querySelector("[aria-label*='unread'], [data-unread-count]");
	return {
		name: h ? h.textContent.trim() : "",
		photo: img ? (img.getAttribute("xlink:href") || img.getAttribute("src") || "") : "",
		unread: badge ? parseInt(badge.getAttribute("data-unread-count") || badge.textContent, 10) || 0 : 0
	};
})()`

type profileInfo struct {
	Name   string `json:"name"`
	Photo  string `json:"photo"`
	Unread int    `json:"unread"`
}

// AccountManager imports, verifies and maintains platform accounts
type AccountManager struct {
	config          *config.Config
	accountRepo     domain.AccountRepository
	provider        session.Provider
	states          SessionStates
	sealer          SecretSealer
	events          *EventBus
	scanner         *Scanner
	classifier      session.Classifier
	checks          *CampaignRegistry
	openInteractive func(ctx context.Context) (session.Session, error)
}

// NewAccountManager creates a new account manager. sealer and states may be nil.
func NewAccountManager(cfg *config.Config, accountRepo domain.AccountRepository, provider session.Provider, states SessionStates, sealer SecretSealer, events *EventBus) *AccountManager {
	if events == nil {
		events = NewEventBus(cfg.EventBufferSize)
	}
	return &AccountManager{
		config:      cfg,
		accountRepo: accountRepo,
		provider:    provider,
		states:      states,
		sealer:      sealer,
		events:      events,
		classifier:  ClassifierFrom(cfg),
		checks:      NewCampaignRegistry(),
	}
}

// SetProfileScanner lets FetchProfile count the account's listings.
func (m *AccountManager) SetProfileScanner(scanner *Scanner) {
	m.scanner = scanner
}

// SetInteractiveOpener enables Login with a visible browser.
func (m *AccountManager) SetInteractiveOpener(open func(ctx context.Context) (session.Session, error)) {
	m.openInteractive = open
}

// ImportAccounts adds accounts from "login|secret|project" lines. Lines whose
// login is already stored or appeared earlier in the input are skipped.
func (m *AccountManager) ImportAccounts(raw string) (ImportResult, error) {
	var result ImportResult
	seen := make(map[string]bool)
	var fresh []*domain.Account
	now := time.Now()

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		login := strings.TrimSpace(parts[0])
		if login == "" || seen[login] {
			result.Skipped++
			continue
		}
		seen[login] = true

		account := &domain.Account{
			ExternalLoginID: login,
			Status:          domain.AccountPending,
			CreatedAt:       now,
		}
		if len(parts) > 1 {
			secret := strings.TrimSpace(parts[1])
			if secret != "" && m.sealer != nil {
				sealed, err := m.sealer.Seal(secret)
				if err != nil {
					return ImportResult{}, fmt.Errorf("failed to seal credential: %w", err)
				}
				secret = sealed
			}
			account.CredentialSecret = secret
		}
		if len(parts) > 2 {
			account.ProjectTag = strings.TrimSpace(parts[2])
		}
		fresh = append(fresh, account)
	}

	added, err := m.accountRepo.AddMany(fresh)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to save accounts: %w", err)
	}
	result.Imported = added
	result.Skipped += len(fresh) - added
	logger.Info("Accounts imported", zap.Int("imported", result.Imported), zap.Int("skipped", result.Skipped))
	return result, nil
}

func (m *AccountManager) mustGet(accountID string) (*domain.Account, error) {
	account, err := m.accountRepo.GetByID(accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	return account, nil
}

// GetAccount retrieves an account by ID
func (m *AccountManager) GetAccount(accountID string) (*domain.Account, error) {
	return m.mustGet(accountID)
}

// ListAccounts returns all accounts, or those tagged with project when it is set.
func (m *AccountManager) ListAccounts(project string) ([]*domain.Account, error) {
	all, err := m.accountRepo.GetAll()
	if err != nil || project == "" {
		return all, err
	}
	var out []*domain.Account
	for _, a := range all {
		if a.ProjectTag == project {
			out = append(out, a)
		}
	}
	return out, nil
}

// VerifyAccount acquires a session and records the result on the account.
func (m *AccountManager) VerifyAccount(ctx context.Context, accountID string) (AccountCheck, error) {
	account, err := m.mustGet(accountID)
	if err != nil {
		return AccountCheck{}, err
	}
	s, err := m.provider.Acquire(ctx, account)
	if err != nil {
		markSessionFailure(m.accountRepo, m.events, account, err)
		var se *domain.SessionError
		if !errors.As(err, &se) || se.Kind == domain.SessionLaunchFailure {
			return AccountCheck{}, err
		}
		return AccountCheck{AccountID: account.ID, Status: account.Status, Reason: err.Error()}, nil
	}
	defer s.Close()

	if err := m.activate(ctx, account, s); err != nil {
		return AccountCheck{}, err
	}
	return AccountCheck{AccountID: account.ID, Status: account.Status}, nil
}

func (m *AccountManager) activate(ctx context.Context, account *domain.Account, s session.Session) error {
	handle := account.ID
	if m.states != nil {
		h, err := m.states.SaveState(ctx, account.ID, s)
		if err != nil {
			return fmt.Errorf("failed to save session state: %w", err)
		}
		handle = h
	}
	if err := account.MarkActive(handle, time.Now()); err != nil {
		return err
	}
	if err := m.accountRepo.Save(account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	m.events.Publish(domain.Event{Type: domain.EventAccountStatus, AccountID: account.ID, Status: string(account.Status)})
	return nil
}

// ValidateAccounts verifies accounts on a bounded pool. Empty ids means all.
func (m *AccountManager) ValidateAccounts(ctx context.Context, accountIDs []string) ([]AccountCheck, error) {
	return m.validate(ctx, accountIDs, nil)
}

// CheckHealth is a ValidateAccounts run that StopHealthCheck can end early.
// Only one runs at a time.
func (m *AccountManager) CheckHealth(ctx context.Context, accountIDs []string) ([]AccountCheck, error) {
	flag, release, ok := m.checks.Register(healthCheckID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCampaignRunning, healthCheckID)
	}
	defer release()
	logger.Info("Health check started", zap.Int("accounts", len(accountIDs)))
	return m.validate(ctx, accountIDs, flag)
}

// StopHealthCheck lets in-flight verifications finish and skips the rest.
// It reports false when no health check is running.
func (m *AccountManager) StopHealthCheck() bool {
	stopped := m.checks.Abort(healthCheckID)
	if stopped {
		logger.Info("Health check stop requested")
	}
	return stopped
}

// HealthCheckRunning reports whether a health check is in progress.
func (m *AccountManager) HealthCheckRunning() bool { return m.checks.Len() > 0 }

func (m *AccountManager) validate(ctx context.Context, accountIDs []string, flag *AbortFlag) ([]AccountCheck, error) {
	var accounts []*domain.Account
	var err error
	if len(accountIDs) == 0 {
		accounts, err = m.accountRepo.GetAll()
	} else {
		accounts, err = m.accountRepo.GetByIDs(accountIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	limit := m.config.ValidationConcurrent
	if limit <= 0 {
		limit = 1
	}
	checks := make([]AccountCheck, len(accounts))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, acc := range accounts {
		g.Go(func() error {
			if flag != nil && flag.Raised() {
				checks[i] = AccountCheck{AccountID: acc.ID, Status: acc.Status, Reason: ReasonCheckStopped}
				return nil
			}
			check, err := m.VerifyAccount(ctx, acc.ID)
			if err != nil {
				check = AccountCheck{AccountID: acc.ID, Status: acc.Status, Reason: err.Error()}
			}
			checks[i] = check
			m.events.Publish(domain.Event{
				Type:         domain.EventAccountStatus,
				AccountID:    acc.ID,
				Status:       string(check.Status),
				Message:      check.Reason,
				CurrentIndex: i + 1,
				Total:        len(accounts),
			})
			return nil
		})
	}
	_ = g.Wait()
	return checks, nil
}

// ImportCookies stores cookies for an account, then verifies it with them.
func (m *AccountManager) ImportCookies(ctx context.Context, accountID, raw string) (AccountCheck, error) {
	if m.states == nil {
		return AccountCheck{}, fmt.Errorf("cookie import is not available")
	}
	account, err := m.mustGet(accountID)
	if err != nil {
		return AccountCheck{}, err
	}
	cookieDomain := ""
	if u, err := url.Parse(m.config.PlatformBaseURL); err == nil && u.Hostname() != "" {
		cookieDomain = "." + strings.TrimPrefix(u.Hostname(), "www.")
	}
	cookies, err := session.ParseCookies(raw, cookieDomain)
	if err != nil {
		return AccountCheck{}, &domain.ValidationError{Field: "cookies", Message: err.Error()}
	}
	if _, err := m.states.ImportState(account.ID, cookies); err != nil {
		return AccountCheck{}, fmt.Errorf("failed to store cookies: %w", err)
	}
	return m.VerifyAccount(ctx, account.ID)
}

// Login opens a visible browser on the login page and waits for the operator
// to reach the home surface, then stores the session.
func (m *AccountManager) Login(ctx context.Context, accountID string) (AccountCheck, error) {
	if m.openInteractive == nil {
		return AccountCheck{}, fmt.Errorf("interactive login is not available")
	}
	account, err := m.mustGet(accountID)
	if err != nil {
		return AccountCheck{}, err
	}
	s, err := m.openInteractive(ctx)
	if err != nil {
		return AccountCheck{}, &domain.SessionError{Kind: domain.SessionLaunchFailure, AccountID: account.ID, Err: err}
	}
	defer s.Close()

	if err := s.Navigate(ctx, m.config.PlatformLoginURL, session.DefaultNavigate); err != nil {
		return AccountCheck{}, err
	}
	loc, err := session.WaitForLocation(ctx, s, m.classifier, m.config.InteractiveLoginTimeout, 2*time.Second)
	if err != nil {
		return AccountCheck{}, err
	}
	switch loc {
	case session.LocationHome:
		if err := m.activate(ctx, account, s); err != nil {
			return AccountCheck{}, err
		}
	case session.LocationIntervention:
		account.MarkCheckpoint("intervention during login", time.Now())
		if err := m.accountRepo.Save(account); err != nil {
			return AccountCheck{}, err
		}
	default:
		return AccountCheck{AccountID: account.ID, Status: account.Status, Reason: "login not completed"}, nil
	}
	return AccountCheck{AccountID: account.ID, Status: account.Status, Reason: account.InvalidReason}, nil
}

// FetchProfile reads display name, photo and listing figures of an account.
func (m *AccountManager) FetchProfile(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := m.mustGet(accountID)
	if err != nil {
		return nil, err
	}
	s, err := m.provider.Acquire(ctx, account)
	if err != nil {
		markSessionFailure(m.accountRepo, m.events, account, err)
		return nil, err
	}
	defer s.Close()

	if m.config.PlatformProfileURL != "" {
		if err := s.Navigate(ctx, m.config.PlatformProfileURL, session.DefaultNavigate); err != nil {
			return nil, err
		}
	}
	var info profileInfo
	if err := s.Evaluate(ctx, profileExpr, &info); err != nil {
		logger.Warn("Profile details unavailable", zap.String("account_id", account.ID), zap.Error(err))
	}
	if info.Name != "" {
		account.DisplayName = info.Name
	}
	if info.Photo != "" {
		account.ProfilePhotoRef = info.Photo
	}
	account.Stats.UnreadCount = info.Unread

	if m.scanner != nil {
		target := ScanTarget{
			Kind:      domain.ScanRenew,
			URL:       m.config.SurfaceURLs["selling"],
			Signature: m.config.QuerySignatures["selling"],
			Op:        platform.OpSellingQuery,
			Shape:     platform.SellingShape,
		}
		res, err := m.scanner.Scan(ctx, s, platform.Tokens{}, target)
		if err == nil {
			account.Stats.ListingCount = len(res.Nodes)
		}
		loc, locErr := s.CurrentLocation(ctx)
		account.Stats.MarketplaceAccess = err == nil && locErr == nil && m.classifier.Classify(loc) != session.LocationLogin
	}

	if err := m.accountRepo.Save(account); err != nil {
		return nil, fmt.Errorf("failed to save account: %w", err)
	}
	return account, nil
}

// UpdateProjectTag tags the given accounts and returns how many were changed.
func (m *AccountManager) UpdateProjectTag(accountIDs []string, tag string) (int, error) {
	accounts, err := m.accountRepo.GetByIDs(accountIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to get accounts: %w", err)
	}
	tag = strings.TrimSpace(tag)
	for _, a := range accounts {
		a.ProjectTag = tag
		if err := m.accountRepo.Save(a); err != nil {
			return 0, fmt.Errorf("failed to update account %s: %w", a.ID, err)
		}
	}
	return len(accounts), nil
}

// DeleteAccount removes an account and its stored session state
func (m *AccountManager) DeleteAccount(accountID string) error {
	if _, err := m.mustGet(accountID); err != nil {
		return err
	}
	if m.states != nil {
		if err := m.states.DropState(accountID); err != nil {
			logger.Warn("Failed to drop session state", zap.String("account_id", accountID), zap.Error(err))
		}
	}
	return m.accountRepo.Delete(accountID)
}
