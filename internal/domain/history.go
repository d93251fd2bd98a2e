package domain

import "time"

// HistoryLog names one of the capped append-only logs.
type HistoryLog string

const (
	LogPosting     HistoryLog = "posting"
	LogOptimize    HistoryLog = "optimize"
	LogKeyword     HistoryLog = "keyword"
	LogGroupScrape HistoryLog = "group-scrape"
	LogGroupPost   HistoryLog = "group-post"
)

// DefaultHistoryCap bounds every history log.
const DefaultHistoryCap = 5000

// HistoryEntry is one outcome row.
type HistoryEntry struct {
	ID         string            `json:"id"`
	Log        HistoryLog        `json:"log"`
	CampaignID string            `json:"campaign_id,omitempty"`
	AccountID  string            `json:"account_id,omitempty"`
	TargetRef  string            `json:"target_ref,omitempty"`
	Outcome    string            `json:"outcome"`
	Message    string            `json:"message,omitempty"`
	URL        string            `json:"url,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// HistoryRepository appends to and reads the capped logs.
type HistoryRepository interface {
	Append(log HistoryLog, entries ...*HistoryEntry) error
	List(log HistoryLog) ([]*HistoryEntry, error)
	DeleteByIDs(log HistoryLog, ids []string) (int, error)
	Clear(log HistoryLog) error
}

// ScanKind names what a scan harvests.
type ScanKind string

const (
	ScanRenew      ScanKind = "renew"
	ScanRelist     ScanKind = "relist"
	ScanViolations ScanKind = "violations"
	ScanKeywords   ScanKind = "keywords"
	ScanLocations  ScanKind = "locations"
	ScanGroups     ScanKind = "groups"
)

// ScannedItem is one remote node produced by a scan.
type ScannedItem struct {
	ID        string   `json:"id"`
	AccountID string   `json:"account_id"`
	Kind      ScanKind `json:"kind"`
	Title     string   `json:"title,omitempty"`
	Price     string   `json:"price,omitempty"`
	Status    string   `json:"status,omitempty"`
	URL       string   `json:"url,omitempty"`
}

// ItemAction is what ExecuteItems does to scanned listings.
type ItemAction string

const (
	ActionRenew  ItemAction = "renew"
	ActionRelist ItemAction = "relist"
	ActionDelete ItemAction = "delete"
)

// ItemOutcome is the per-item result of ExecuteItems.
type ItemOutcome struct {
	ItemID    string    `json:"item_id"`
	AccountID string    `json:"account_id"`
	State     ItemState `json:"state"`
	Message   string    `json:"message,omitempty"`
}

// QuotaCounter tracks usage of one operation kind against its limit.
type QuotaCounter struct {
	Kind string `json:"kind"`
	Max  int    `json:"max"`
	Used int    `json:"used"`
}

// QuotaRepository persists quota counters.
type QuotaRepository interface {
	// Consume atomically checks and reserves count units of kind.
	Consume(kind string, max, count int) (QuotaCounter, bool, error)
	GetAll() ([]QuotaCounter, error)
}
