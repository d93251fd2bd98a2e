package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/logger"
)

// AccountMonitor keeps account statuses fresh by re-verifying accounts whose
// last check is older than the recheck interval.
type AccountMonitor struct {
	config   *config.Config
	repo     domain.AccountRepository
	accounts *AccountManager
}

// NewAccountMonitor creates a new account monitor
func NewAccountMonitor(cfg *config.Config, repo domain.AccountRepository, accounts *AccountManager) *AccountMonitor {
	return &AccountMonitor{config: cfg, repo: repo, accounts: accounts}
}

func (m *AccountMonitor) recheckAfter() time.Duration {
	if m.config.AccountRecheck > 0 {
		return m.config.AccountRecheck
	}
	return 12 * time.Hour
}

// StaleAccounts lists accounts due for a check. PENDING accounts are always
// due; ACTIVE ones once their last check is older than the interval. INVALID
// and CHECKPOINT accounts wait for the operator.
func (m *AccountMonitor) StaleAccounts(now time.Time) ([]*domain.Account, error) {
	all, err := m.repo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	cutoff := now.Add(-m.recheckAfter())
	var due []*domain.Account
	for _, acc := range all {
		switch acc.Status {
		case domain.AccountPending:
			due = append(due, acc)
		case domain.AccountActive:
			if acc.LastCheckedAt == nil || acc.LastCheckedAt.Before(cutoff) {
				due = append(due, acc)
			}
		}
	}
	return due, nil
}

// MonitorAllAccounts verifies every stale account and returns how many ended
// in each status.
func (m *AccountMonitor) MonitorAllAccounts(ctx context.Context) (map[domain.AccountStatus]int, error) {
	due, err := m.StaleAccounts(time.Now())
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.AccountStatus]int)
	if len(due) == 0 {
		return counts, nil
	}

	ids := make([]string, 0, len(due))
	for _, acc := range due {
		ids = append(ids, acc.ID)
	}
	checks, err := m.accounts.ValidateAccounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range checks {
		counts[c.Status]++
		if c.Status != domain.AccountActive {
			logger.Warn("Account needs attention",
				zap.String("account_id", c.AccountID),
				zap.String("status", string(c.Status)),
				zap.String("reason", c.Reason))
		}
	}
	logger.Info("Account recheck finished",
		zap.Int("checked", len(checks)),
		zap.Int("active", counts[domain.AccountActive]))
	return counts, nil
}
