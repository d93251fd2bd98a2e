package usecase

import (
	"fmt"

	"listing_orchestrator/internal/domain"
)

// QuotaDecision is the answer of a trial limit check.
type QuotaDecision struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
	Used    int    `json:"used"`
	Max     int    `json:"max"`
}

// QuotaChecker guards operation kinds with configured usage limits.
type QuotaChecker struct {
	repo   domain.QuotaRepository
	limits map[string]int
}

// NewQuotaChecker creates a QuotaChecker. Kinds without a limit are unlimited.
func NewQuotaChecker(repo domain.QuotaRepository, limits map[string]int) *QuotaChecker {
	return &QuotaChecker{repo: repo, limits: limits}
}

// CheckTrialLimit reserves count units of kind when they fit. A refusal leaves
// the counter untouched.
func (q *QuotaChecker) CheckTrialLimit(kind string, count int) (QuotaDecision, error) {
	max, limited := q.limits[kind]
	if !limited || max <= 0 {
		return QuotaDecision{Allowed: true}, nil
	}
	counter, allowed, err := q.repo.Consume(kind, max, count)
	if err != nil {
		return QuotaDecision{}, fmt.Errorf("quota %s: %w", kind, err)
	}
	d := QuotaDecision{Allowed: allowed, Used: counter.Used, Max: counter.Max}
	if !allowed {
		d.Message = fmt.Sprintf("%d requested, %d of %d used", count, counter.Used, counter.Max)
	}
	return d, nil
}

// Admit turns a refused check into a *domain.QuotaExceededError.
func (q *QuotaChecker) Admit(kind string, count int) error {
	d, err := q.CheckTrialLimit(kind, count)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return &domain.QuotaExceededError{Kind: kind, Message: d.Message}
	}
	return nil
}

// Usage lists the stored counters.
func (q *QuotaChecker) Usage() ([]domain.QuotaCounter, error) {
	return q.repo.GetAll()
}
