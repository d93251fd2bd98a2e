package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/logger"
)

// AccountChecker re-verifies accounts that are due for a check.
type AccountChecker interface {
	MonitorAllAccounts(ctx context.Context) (map[domain.AccountStatus]int, error)
}

// CampaignRunner runs a stored campaign to completion.
type CampaignRunner interface {
	RunStoredCampaign(ctx context.Context, id string) (domain.Summary, error)
}

// CampaignSource lists stored campaigns that carry a schedule.
type CampaignSource interface {
	ScheduledCampaigns() ([]*domain.Campaign, error)
}

// Scheduler manages cron jobs for the application
type Scheduler struct {
	cron      *cron.Cron
	config    *config.Config
	accounts  AccountChecker
	runner    CampaignRunner
	campaigns CampaignSource
	ctx       context.Context
	cancel    context.CancelFunc

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewScheduler creates a new cron scheduler
func NewScheduler(cfg *config.Config, accounts AccountChecker, runner CampaignRunner, campaigns CampaignSource) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		config:    cfg,
		accounts:  accounts,
		runner:    runner,
		campaigns: campaigns,
		ctx:       ctx,
		cancel:    cancel,
		entries:   make(map[string]cron.EntryID),
	}
}

// Start schedules the account recheck and every scheduled campaign, then
// starts the cron loop.
func (s *Scheduler) Start() error {
	monitorSchedule := normalizeSchedule(s.config.CronSchedule)
	monitorJobID, err := s.cron.AddFunc(monitorSchedule, s.monitorAccountsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule monitor job: %w", err)
	}
	logger.Info("Scheduled account recheck job",
		zap.Int("job_id", int(monitorJobID)),
		zap.String("schedule", monitorSchedule))

	if err := s.SyncCampaigns(); err != nil {
		return err
	}

	s.cron.Start()
	logger.Info("Cron scheduler started")

	go s.monitorAccountsJob()
	return nil
}

// SyncCampaigns reconciles cron entries with the stored campaign schedules.
// Campaigns with an unparsable schedule are logged and left out.
func (s *Scheduler) SyncCampaigns() error {
	campaigns, err := s.campaigns.ScheduledCampaigns()
	if err != nil {
		return fmt.Errorf("failed to load scheduled campaigns: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(campaigns))
	for _, c := range campaigns {
		wanted[c.ID] = true
		if _, ok := s.entries[c.ID]; ok {
			continue
		}
		schedule := normalizeSchedule(c.Schedule)
		id := c.ID
		entryID, err := s.cron.AddFunc(schedule, func() { s.runCampaignJob(id) })
		if err != nil {
			logger.Error("Invalid campaign schedule",
				zap.String("campaign_id", c.ID),
				zap.String("schedule", c.Schedule),
				zap.Error(err))
			continue
		}
		s.entries[c.ID] = entryID
		logger.Info("Scheduled campaign", zap.String("campaign_id", c.ID), zap.String("schedule", schedule))
	}
	for id, entryID := range s.entries {
		if !wanted[id] {
			s.cron.Remove(entryID)
			delete(s.entries, id)
		}
	}
	return nil
}

// Scheduled returns the ids of campaigns with a live cron entry.
func (s *Scheduler) Scheduled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// Stop stops the cron scheduler gracefully
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	s.cancel()
	<-s.cron.Stop().Done()
	logger.Info("Cron scheduler stopped")
}

func (s *Scheduler) monitorAccountsJob() {
	logger.Info("Starting account recheck job...")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Minute)
	defer cancel()

	counts, err := s.accounts.MonitorAllAccounts(ctx)
	if err != nil {
		logger.Error("Account recheck job failed", zap.Error(err))
		return
	}
	checked := 0
	for _, n := range counts {
		checked += n
	}
	logger.Info("Account recheck job completed",
		zap.Int("checked", checked),
		zap.Duration("duration", time.Since(startTime)))
}

func (s *Scheduler) runCampaignJob(id string) {
	logger.Info("Starting scheduled campaign", zap.String("campaign_id", id))
	summary, err := s.runner.RunStoredCampaign(s.ctx, id)
	switch {
	case errors.Is(err, domain.ErrCampaignRunning):
		logger.Warn("Scheduled campaign still running, skipping this tick", zap.String("campaign_id", id))
	case err != nil:
		logger.Error("Scheduled campaign failed", zap.String("campaign_id", id), zap.Error(err))
	default:
		logger.Info("Scheduled campaign finished",
			zap.String("campaign_id", id),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped))
	}
}

// normalizeSchedule ensures cron expressions are compatible with cron.WithSeconds
func normalizeSchedule(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) == 5 {
		return "0 " + expr
	}
	return expr
}
