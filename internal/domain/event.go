package domain

import "time"

// EventType names a progress event.
type EventType string

const (
	EventCampaignStarted  EventType = "campaign_started"
	EventCampaignFinished EventType = "campaign_finished"
	EventItemStatus       EventType = "item_status"
	EventAccountStatus    EventType = "account_status"
	EventScanProgress     EventType = "scan_progress"
	EventLog              EventType = "log"
)

// Event is a best-effort progress notification.
type Event struct {
	Type         EventType `json:"type"`
	CampaignID   string    `json:"campaign_id,omitempty"`
	AccountID    string    `json:"account_id,omitempty"`
	ItemID       string    `json:"item_id,omitempty"`
	Status       string    `json:"status,omitempty"`
	Message      string    `json:"message,omitempty"`
	CurrentIndex int       `json:"current_index"`
	Total        int       `json:"total"`
	Time         time.Time `json:"time"`
}
