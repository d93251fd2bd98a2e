package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/delivery/cron"
	"listing_orchestrator/internal/delivery/httpapi"
	"listing_orchestrator/internal/logger"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "listing-orchestrator",
		Short:         "Publish and maintain marketplace listings across many accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	root.AddCommand(
		serveCmd(),
		importCmd(),
		verifyCmd(),
		loginCmd(),
		runCampaignCmd(),
		estimateCmd(),
		statsCmd(),
	)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration, initializes logging and wires the application.
func setup() (*app, func(), error) {
	if configPath != "" {
		config.SetPath(configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if _, err := logger.Initialize(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	a, err := newApp(cfg)
	if err != nil {
		logger.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close database", zap.Error(err))
		}
		if err := logger.Close(); err != nil {
			log.Printf("Failed to close log files: %v", err)
		}
	}
	return a, cleanup, nil
}

// signalContext is cancelled on interrupt so running campaigns abort cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			scheduler := cron.NewScheduler(a.cfg, a.monitor, a.orchestrator, a.records)
			if err := scheduler.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			apiServer := httpapi.NewServer(a.cfg, httpapi.Services{
				Accounts:     a.accounts,
				Materials:    a.materials,
				Orchestrator: a.orchestrator,
				Maintenance:  a.maintenance,
				Discovery:    a.discovery,
				Records:      a.records,
				Quota:        a.quota,
				Dashboard:    a.dashboard,
				Schedules:    scheduler,
			})
			if err := apiServer.Start(); err != nil {
				scheduler.Stop()
				return fmt.Errorf("failed to start HTTP API server: %w", err)
			}

			ctx, stop := signalContext()
			defer stop()
			logger.Info("Application started. Press Ctrl+C to stop.")
			<-ctx.Done()

			logger.Info("Shutting down...")
			for _, id := range a.orchestrator.RunningCampaigns() {
				a.orchestrator.StopCampaign(id)
			}
			a.maintenance.StopExecution()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			scheduler.Stop()
			if err := apiServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP API shutdown error", zap.Error(err))
			}
			logger.Info("Application stopped.")
			return nil
		},
	}
}
