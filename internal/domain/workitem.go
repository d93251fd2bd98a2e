package domain

import "fmt"

// ItemState is a step of the work item state machine.
type ItemState string

const (
	ItemQueued          ItemState = "QUEUED"
	ItemAssigned        ItemState = "ASSIGNED"
	ItemAwaitingSession ItemState = "AWAITING_SESSION"
	ItemTokenExtracting ItemState = "TOKEN_EXTRACTING"
	ItemExecuting       ItemState = "EXECUTING"
	ItemSucceeded       ItemState = "SUCCEEDED"
	ItemFailed          ItemState = "FAILED"
	ItemSkipped         ItemState = "SKIPPED"
	ItemAborted         ItemState = "ABORTED"
)

// Terminal reports whether no further transition is allowed.
func (s ItemState) Terminal() bool {
	switch s {
	case ItemSucceeded, ItemFailed, ItemSkipped, ItemAborted:
		return true
	}
	return false
}

var forwardOrder = map[ItemState]int{
	ItemQueued:          0,
	ItemAssigned:        1,
	ItemAwaitingSession: 2,
	ItemTokenExtracting: 3,
	ItemExecuting:       4,
}

// WorkItem is one account x material unit of a campaign run. It is never persisted.
type WorkItem struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	AccountID  string    `json:"account_id"`
	MaterialID string    `json:"material_id"`
	GroupID    string    `json:"group_id,omitempty"`
	Index      int       `json:"index"`
	State      ItemState `json:"state"`
	Reason     string    `json:"reason,omitempty"`
	URL        string    `json:"url,omitempty"`
}

// Transition moves the item to next. Non-terminal states only move forward; any
// non-terminal state may end in a terminal one; terminal states never change.
func (w *WorkItem) Transition(next ItemState) error {
	if w.State.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalState, w.State, next)
	}
	if !next.Terminal() && forwardOrder[next] < forwardOrder[w.State] {
		return fmt.Errorf("invalid transition %s -> %s", w.State, next)
	}
	w.State = next
	return nil
}

// Finish moves the item to a terminal state with a reason.
func (w *WorkItem) Finish(state ItemState, reason string) error {
	if !state.Terminal() {
		return fmt.Errorf("finish with non-terminal state %s", state)
	}
	if err := w.Transition(state); err != nil {
		return err
	}
	w.Reason = reason
	return nil
}
