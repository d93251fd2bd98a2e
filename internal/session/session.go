// Package session defines the remote session abstraction the orchestrator drives.
// Concrete browser drivers live in internal/infrastructure/browser.
package session

import (
	"context"
	"time"

	"listing_orchestrator/internal/domain"
)

// NavigatePolicy controls how long a navigation may take and what counts as done.
type NavigatePolicy struct {
	Timeout time.Duration
	// Settle is an extra pause after the page reports loaded.
	Settle time.Duration
	// TolerateTimeout keeps going with whatever loaded when the timeout fires.
	TolerateTimeout bool
}

// DefaultNavigate is used when callers have no specific needs.
var DefaultNavigate = NavigatePolicy{Timeout: 45 * time.Second, Settle: 2 * time.Second, TolerateTimeout: true}

// Request is an HTTP request issued from inside the session, carrying its cookies.
type Request struct {
	Method  string
	URL     string
	Header  map[string]string
	Body    string
	Timeout time.Duration
}

// Response is the result of a Request.
type Response struct {
	Status int
	Body   string
}

// CapturedResponse is a network response the session observed while browsing.
type CapturedResponse struct {
	URL         string
	RequestBody string
	Body        string
}

// Identity is the client identity a session presents.
type Identity struct {
	UserAgent string
	Width     int
	Height    int
}

// Session is an authenticated interaction handle bound to one account.
// A session is used by one goroutine at a time.
type Session interface {
	Navigate(ctx context.Context, url string, policy NavigatePolicy) error
	CurrentLocation(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, expr string, out any) error
	ExtractCookie(ctx context.Context, name string) (string, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	Content(ctx context.Context) (string, error)
	Fetch(ctx context.Context, req Request) (*Response, error)
	// CapturedResponses returns observed responses whose URL or request body contains signature.
	CapturedResponses(signature string) []CapturedResponse
	Scroll(ctx context.Context) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Identity() Identity
	Close() error
}

// Provider acquires sessions. Acquire fails with *domain.SessionError.
type Provider interface {
	Acquire(ctx context.Context, account *domain.Account) (Session, error)
}
