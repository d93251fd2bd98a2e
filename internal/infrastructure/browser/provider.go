// Package browser implements session.Provider on top of a real browser. Two
// drivers are available: chromedp (default) and go-rod.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/logger"
	"listing_orchestrator/internal/session"
)

// DriverSession is a session the provider can seed with stored cookies.
type DriverSession interface {
	session.Session
	SetCookies(ctx context.Context, cookies []session.Cookie) error
}

// Driver opens fresh browser sessions.
type Driver interface {
	Open(ctx context.Context, identity session.Identity) (DriverSession, error)
}

// SecretOpener turns a stored credential secret into the plain password.
type SecretOpener func(stored string) (string, error)

// Options configures a Provider.
type Options struct {
	HomeURL    string
	Identities []session.Identity
	Classifier session.Classifier
	Login      session.LoginForm
	Navigate   session.NavigatePolicy
	OpenSecret SecretOpener
}

// Provider restores stored cookie state or logs in with the account credential.
type Provider struct {
	driver Driver
	states session.StateStore
	opts   Options

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// NewProvider creates a Provider.
func NewProvider(driver Driver, states session.StateStore, opts Options) *Provider {
	if opts.Classifier == nil {
		opts.Classifier = session.DefaultClassifier
	}
	if opts.Navigate.Timeout == 0 {
		opts.Navigate = session.DefaultNavigate
	}
	if opts.OpenSecret == nil {
		opts.OpenSecret = func(s string) (string, error) { return s, nil }
	}
	return &Provider{
		driver: driver,
		states: states,
		opts:   opts,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *Provider) identity() session.Identity {
	p.rndMu.Lock()
	defer p.rndMu.Unlock()
	return session.PickIdentity(p.opts.Identities, p.rnd)
}

// Acquire returns an authenticated session for account or a *domain.SessionError.
func (p *Provider) Acquire(ctx context.Context, account *domain.Account) (session.Session, error) {
	cookies, err := p.states.Load(account.ID)
	if err != nil {
		logger.Warn("Stored session state unreadable, ignoring", zap.String("account", account.ID), zap.Error(err))
		cookies = nil
	}
	if len(cookies) == 0 && account.CredentialSecret == "" {
		return nil, &domain.SessionError{Kind: domain.SessionNoCredential, AccountID: account.ID}
	}

	s, err := p.driver.Open(ctx, p.identity())
	if err != nil {
		return nil, &domain.SessionError{Kind: domain.SessionLaunchFailure, AccountID: account.ID, Err: err}
	}

	if len(cookies) > 0 {
		loc, err := p.restore(ctx, s, cookies)
		switch {
		case err != nil:
			s.Close()
			return nil, &domain.SessionError{Kind: domain.SessionLaunchFailure, AccountID: account.ID, Err: err}
		case loc == session.LocationHome:
			return s, nil
		case loc == session.LocationIntervention:
			s.Close()
			return nil, &domain.SessionError{Kind: domain.SessionIntervention, AccountID: account.ID}
		}
		logger.Info("Stored session expired", zap.String("account", account.ID), zap.String("location", string(loc)))
		if account.CredentialSecret == "" {
			s.Close()
			return nil, &domain.SessionError{Kind: domain.SessionInvalid, AccountID: account.ID, Err: errors.New("stored session expired")}
		}
	}

	secret, err := p.opts.OpenSecret(account.CredentialSecret)
	if err != nil {
		s.Close()
		return nil, &domain.SessionError{Kind: domain.SessionNoCredential, AccountID: account.ID, Err: err}
	}
	if err := session.FormLogin(ctx, s, p.opts.Classifier, p.opts.Login, account.ID, account.ExternalLoginID, secret); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (p *Provider) restore(ctx context.Context, s DriverSession, cookies []session.Cookie) (session.Location, error) {
	if err := s.SetCookies(ctx, cookies); err != nil {
		return session.LocationOther, fmt.Errorf("set cookies: %w", err)
	}
	if err := s.Navigate(ctx, p.opts.HomeURL, p.opts.Navigate); err != nil {
		return session.LocationOther, fmt.Errorf("navigate home: %w", err)
	}
	current, err := s.CurrentLocation(ctx)
	if err != nil {
		return session.LocationOther, err
	}
	return p.opts.Classifier.Classify(current), nil
}

// SaveState persists the cookies of s and returns the handle to store on the account.
func (p *Provider) SaveState(ctx context.Context, accountID string, s session.Session) (string, error) {
	cookies, err := s.Cookies(ctx)
	if err != nil {
		return "", fmt.Errorf("read cookies: %w", err)
	}
	return p.states.Save(accountID, cookies)
}

// ImportState stores externally supplied cookies for an account.
func (p *Provider) ImportState(accountID string, cookies []session.Cookie) (string, error) {
	return p.states.Save(accountID, cookies)
}

// DropState forgets the stored cookies of an account.
func (p *Provider) DropState(accountID string) error {
	return p.states.Delete(accountID)
}

// Open exposes a bare session, used for interactive login.
func (p *Provider) Open(ctx context.Context) (DriverSession, error) {
	return p.driver.Open(ctx, p.identity())
}
