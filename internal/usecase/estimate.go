package usecase

import (
	"fmt"
	"time"

	"listing_orchestrator/internal/domain"
)

// Overheads the estimate assumes on top of the configured delays.
const (
	sessionOverhead  = 15 * time.Second // launch, login check, tokens, limit check
	photoOverhead    = 1500 * time.Millisecond
	mutationOverhead = 2 * time.Second
)

// CampaignEstimate bounds how long a campaign takes.
type CampaignEstimate struct {
	Items      int            `json:"items"`
	Accounts   int            `json:"accounts"`
	PerAccount map[string]int `json:"per_account"`
	Best       time.Duration  `json:"best"`
	Worst      time.Duration  `json:"worst"`
}

func (e CampaignEstimate) String() string {
	return fmt.Sprintf("%d items over %d accounts: %s to %s",
		e.Items, e.Accounts, e.Best.Round(time.Second), e.Worst.Round(time.Second))
}

// EstimateCampaign expands the campaign and bounds its duration with the
// fastest and slowest delays. Nothing is executed.
func (o *Orchestrator) EstimateCampaign(c *domain.Campaign) (CampaignEstimate, error) {
	if err := c.Validate(); err != nil {
		return CampaignEstimate{}, err
	}
	items := c.ExpandWorkItems()
	materials, err := o.deps.Materials.GetByIDs(materialIDs(items))
	if err != nil {
		return CampaignEstimate{}, fmt.Errorf("failed to load materials: %w", err)
	}
	photos := make(map[string]int, len(materials))
	for _, m := range materials {
		photos[m.ID] = len(m.PhotoPaths)
	}

	delay := DelayRange{Min: c.DelayMin, Max: c.DelayMax}
	if delay.Min == 0 && delay.Max == 0 {
		delay = DelayRange{Min: o.config.DelayMin, Max: o.config.DelayMax}
	}
	gap := DelayRange{Min: o.config.UploadGapMin, Max: o.config.UploadGapMax}
	calls, phaseWait := 1, time.Duration(0)
	if c.Mode == domain.ModeAntiDuplicate {
		calls, phaseWait = 3, o.config.SettleDelay+o.config.LaunchDelay
	}

	order, groups := groupByAccount(items)
	est := CampaignEstimate{Items: len(items), Accounts: len(order), PerAccount: make(map[string]int, len(order))}
	best := make([]time.Duration, 0, len(order))
	worst := make([]time.Duration, 0, len(order))
	for _, accountID := range order {
		group := groups[accountID]
		est.PerAccount[accountID] = len(group)
		lo, hi := sessionOverhead, sessionOverhead
		for i, it := range group {
			n := photos[it.MaterialID]
			work := time.Duration(n)*photoOverhead + time.Duration(calls)*mutationOverhead + phaseWait
			lo += work
			hi += work
			if n > 1 {
				lo += time.Duration(n-1) * gap.Min
				hi += time.Duration(n-1) * gap.Max
			}
			if i > 0 {
				lo += delay.Min
				hi += delay.Max
			}
		}
		best = append(best, lo)
		worst = append(worst, hi)
	}
	slots := o.concurrency(c)
	est.Best = makespan(best, slots)
	est.Worst = makespan(worst, slots)
	return est, nil
}

// makespan assigns jobs in order to the earliest free of slots workers.
func makespan(jobs []time.Duration, slots int) time.Duration {
	if slots <= 0 {
		slots = 1
	}
	free := make([]time.Duration, slots)
	var end time.Duration
	for _, d := range jobs {
		k := 0
		for i := range free {
			if free[i] < free[k] {
				k = i
			}
		}
		free[k] += d
		if free[k] > end {
			end = free[k]
		}
	}
	return end
}
