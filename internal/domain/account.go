package domain

import (
	"fmt"
	"time"
)

// AccountStatus is the verification state of a platform account.
type AccountStatus string

const (
	AccountPending    AccountStatus = "PENDING"
	AccountActive     AccountStatus = "ACTIVE"
	AccountInvalid    AccountStatus = "INVALID"
	AccountCheckpoint AccountStatus = "CHECKPOINT"
)

// AccountStats are derived figures captured during a profile fetch.
type AccountStats struct {
	ListingCount      int  `json:"listing_count"`
	UnreadCount       int  `json:"unread_count"`
	MarketplaceAccess bool `json:"marketplace_access"`
}

// Account represents a platform login managed by the orchestrator
type Account struct {
	// ID is the unique identifier for the account
	ID string `json:"id"`

	// ExternalLoginID is the login name or numeric id used on the platform
	ExternalLoginID string `json:"external_login_id"`

	// CredentialSecret is the password, encrypted at rest when a key is configured
	CredentialSecret string `json:"credential_secret,omitempty"`

	// Status is the result of the last verification
	Status AccountStatus `json:"status"`

	// SessionHandle references stored session state; empty unless the last check saw ACTIVE
	SessionHandle string `json:"session_handle,omitempty"`

	// LastCheckedAt is when the status was last set by a check
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`

	// InvalidReason explains an INVALID or CHECKPOINT status
	InvalidReason string `json:"invalid_reason,omitempty"`

	DisplayName     string       `json:"display_name,omitempty"`
	ProfilePhotoRef string       `json:"profile_photo_ref,omitempty"`
	Stats           AccountStats `json:"stats"`

	// ProjectTag groups accounts for bulk selection
	ProjectTag string `json:"project_tag,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// MarkActive records a successful check. A session handle is mandatory.
func (a *Account) MarkActive(handle string, at time.Time) error {
	if handle == "" {
		return &ValidationError{Field: "session_handle", Message: "required for an active account"}
	}
	a.Status = AccountActive
	a.SessionHandle = handle
	a.InvalidReason = ""
	a.LastCheckedAt = &at
	return nil
}

// MarkInvalid records a failed login and drops the session handle.
func (a *Account) MarkInvalid(reason string, at time.Time) {
	a.Status = AccountInvalid
	a.SessionHandle = ""
	a.InvalidReason = reason
	a.LastCheckedAt = &at
}

// MarkCheckpoint records a platform intervention and drops the session handle.
func (a *Account) MarkCheckpoint(reason string, at time.Time) {
	a.Status = AccountCheckpoint
	a.SessionHandle = ""
	a.InvalidReason = reason
	a.LastCheckedAt = &at
}

// HasSession reports whether stored session state may be reused.
func (a *Account) HasSession() bool {
	return a.Status == AccountActive && a.SessionHandle != ""
}

// Label is a short human readable reference used in logs and events.
func (a *Account) Label() string {
	if a.DisplayName != "" {
		return fmt.Sprintf("%s (%s)", a.DisplayName, a.ExternalLoginID)
	}
	return a.ExternalLoginID
}

// AccountRepository defines the interface for account data operations
type AccountRepository interface {
	// GetAll returns all accounts in insertion order
	GetAll() ([]*Account, error)

	// GetByID returns an account by its ID, or nil when absent
	GetByID(id string) (*Account, error)

	// GetByIDs returns the accounts for ids in the given order, skipping unknown ids
	GetByIDs(ids []string) ([]*Account, error)

	// GetByLogin returns an account by external login id, or nil when absent
	GetByLogin(loginID string) (*Account, error)

	// Save inserts or replaces an account
	Save(account *Account) error

	// AddMany inserts accounts whose login id is not already stored and returns the number added
	AddMany(accounts []*Account) (int, error)

	// Delete removes an account by ID
	Delete(id string) error
}
