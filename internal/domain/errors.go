package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAborted         = errors.New("campaign aborted")
	ErrTerminalState   = errors.New("work item already in a terminal state")
	ErrCampaignRunning = errors.New("campaign already running")
	ErrAccountLimited  = errors.New("account limited")
)

// SessionErrorKind classifies why a session could not be established.
type SessionErrorKind string

const (
	SessionNoCredential  SessionErrorKind = "NO_CREDENTIAL"
	SessionLaunchFailure SessionErrorKind = "LAUNCH_FAILURE"
	SessionInvalid       SessionErrorKind = "INVALID"
	SessionIntervention  SessionErrorKind = "INTERVENTION"
)

// SessionError means no authenticated session could be obtained for an account.
type SessionError struct {
	Kind      SessionErrorKind
	AccountID string
	Err       error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session %s for account %s: %v", strings.ToLower(string(e.Kind)), e.AccountID, e.Err)
	}
	return fmt.Sprintf("session %s for account %s", strings.ToLower(string(e.Kind)), e.AccountID)
}

func (e *SessionError) Unwrap() error { return e.Err }

// TokenExtractionError is returned when every fallback was exhausted; Missing names the absent tokens.
type TokenExtractionError struct {
	Attempts int
	Missing  []string
}

func (e *TokenExtractionError) Error() string {
	return fmt.Sprintf("token extraction failed after %d attempts: missing %s", e.Attempts, strings.Join(e.Missing, ", "))
}

// QuotaExceededError is returned by the pre-flight quota check.
type QuotaExceededError struct {
	Kind    string
	Message string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %s", e.Kind, e.Message)
}

// RemoteMutationError carries the platform's application-level error message verbatim.
type RemoteMutationError struct {
	Stage   string
	Message string
}

func (e *RemoteMutationError) Error() string {
	if e.Stage == "" {
		return e.Message
	}
	return e.Stage + ": " + e.Message
}

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsAccountLevel reports whether err should stop all remaining work for the account.
func IsAccountLevel(err error) bool {
	var se *SessionError
	return errors.As(err, &se) || errors.Is(err, ErrAccountLimited)
}
