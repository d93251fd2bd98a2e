package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"listing_orchestrator/internal/domain"
)

// LoginForm names the selectors of the platform's credential form.
type LoginForm struct {
	URL              string
	UserSelector     string
	PasswordSelector string
	SubmitSelector   string
	// Wait bounds how long to poll for the post-submit location.
	Wait time.Duration
}

// FormLogin submits credentials and waits until the location settles on HOME,
// LOGIN or INTERVENTION. HOME succeeds; the others return a *domain.SessionError.
func FormLogin(ctx context.Context, s Session, classifier Classifier, form LoginForm, accountID, user, secret string) error {
	if user == "" || secret == "" {
		return &domain.SessionError{Kind: domain.SessionNoCredential, AccountID: accountID}
	}
	if err := s.Navigate(ctx, form.URL, DefaultNavigate); err != nil {
		return &domain.SessionError{Kind: domain.SessionLaunchFailure, AccountID: accountID, Err: err}
	}
	steps := []func() error{
		func() error { return s.Fill(ctx, form.UserSelector, user) },
		func() error { return s.Fill(ctx, form.PasswordSelector, secret) },
		func() error { return s.Click(ctx, form.SubmitSelector) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return &domain.SessionError{Kind: domain.SessionLaunchFailure, AccountID: accountID, Err: fmt.Errorf("login form: %w", err)}
		}
	}

	loc, err := WaitForLocation(ctx, s, classifier, form.Wait, time.Second)
	if err != nil {
		return &domain.SessionError{Kind: domain.SessionLaunchFailure, AccountID: accountID, Err: err}
	}
	switch loc {
	case LocationHome:
		return nil
	case LocationIntervention:
		return &domain.SessionError{Kind: domain.SessionIntervention, AccountID: accountID}
	default:
		return &domain.SessionError{Kind: domain.SessionInvalid, AccountID: accountID, Err: errors.New("credentials rejected")}
	}
}

// WaitForLocation polls the session URL until it reaches HOME or INTERVENTION,
// or until wait elapses. A timeout reports the last classification.
func WaitForLocation(ctx context.Context, s Session, classifier Classifier, wait, every time.Duration) (Location, error) {
	if wait <= 0 {
		wait = 30 * time.Second
	}
	deadline := time.Now().Add(wait)
	last := LocationOther
	for {
		current, err := s.CurrentLocation(ctx)
		if err == nil {
			last = classifier.Classify(current)
			if last == LocationHome || last == LocationIntervention {
				return last, nil
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return last, nil
		}
		pause := every
		if remaining < pause {
			pause = remaining
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(pause):
		}
	}
}

// PickIdentity returns a random entry of pool, or a zero Identity for an empty pool.
func PickIdentity(pool []Identity, rnd *rand.Rand) Identity {
	if len(pool) == 0 {
		return Identity{}
	}
	if rnd == nil {
		return pool[rand.Intn(len(pool))]
	}
	return pool[rnd.Intn(len(pool))]
}
