package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"listing_orchestrator/internal/domain"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: `Import accounts from "login|secret|project" lines`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			a, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := a.accounts.ImportAccounts(string(raw))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d\n", res.Imported, res.Skipped)
			return nil
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [account-id...]",
		Short: "Verify accounts; all accounts when none are named",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signalContext()
			defer stop()
			checks, err := a.accounts.ValidateAccounts(ctx, args)
			if err != nil {
				return err
			}
			for _, c := range checks {
				line := fmt.Sprintf("%s\t%s", c.AccountID, c.Status)
				if c.Reason != "" {
					line += "\t" + c.Reason
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print account, history and quota totals as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := a.dashboard.Stats()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}

func loginCmd() *cobra.Command {
	var cookies string
	cmd := &cobra.Command{
		Use:   "login <account-id>",
		Short: "Log an account in through a visible browser, or import its cookies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signalContext()
			defer stop()
			if cookies != "" {
				check, err := a.accounts.ImportCookies(ctx, args[0], cookies)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", check.AccountID, check.Status)
				return nil
			}
			check, err := a.accounts.Login(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", check.AccountID, check.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&cookies, "cookies", "", `cookie header ("name=value; ...") to import instead of logging in`)
	return cmd
}

// campaignFlags builds an ad hoc campaign from command line flags.
type campaignFlags struct {
	accounts     []string
	materials    []string
	groups       []string
	distribution string
	mode         string
	concurrency  int
	delayMin     time.Duration
	delayMax     time.Duration
	hide         bool
}

func (f *campaignFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.accounts, "accounts", nil, "account ids")
	cmd.Flags().StringSliceVar(&f.materials, "materials", nil, "material ids")
	cmd.Flags().StringSliceVar(&f.groups, "groups", nil, "post into these stored group targets instead of the marketplace")
	cmd.Flags().StringVar(&f.distribution, "distribution", string(domain.DistributeAll), "ALL or SPLIT")
	cmd.Flags().StringVar(&f.mode, "mode", string(domain.ModeStandard), "STANDARD or ANTI_DUPLICATE")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "accounts served at once (0 uses the configured value)")
	cmd.Flags().DurationVar(&f.delayMin, "delay-min", 0, "minimum delay between items of one account")
	cmd.Flags().DurationVar(&f.delayMax, "delay-max", 0, "maximum delay between items of one account")
	cmd.Flags().BoolVar(&f.hide, "hide-from-friends", false, "hide listings from friends")
}

func (f *campaignFlags) campaign() *domain.Campaign {
	c := &domain.Campaign{
		AccountIDs:      f.accounts,
		MaterialIDs:     f.materials,
		Distribution:    domain.Distribution{Kind: domain.DistributionKind(strings.ToUpper(f.distribution))},
		Mode:            domain.PublishMode(strings.ToUpper(f.mode)),
		Concurrency:     f.concurrency,
		DelayMin:        f.delayMin,
		DelayMax:        f.delayMax,
		HideFromFriends: f.hide,
		CreatedAt:       time.Now(),
	}
	if len(f.groups) > 0 {
		c.Destination = domain.DestinationGroups
		c.GroupIDs = f.groups
	}
	return c
}

func runCampaignCmd() *cobra.Command {
	var flags campaignFlags
	cmd := &cobra.Command{
		Use:   "run-campaign [stored-campaign-id]",
		Short: "Run a stored campaign, or one described by flags, and wait for it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signalContext()
			defer stop()
			var summary domain.Summary
			if len(args) == 1 {
				summary, err = a.orchestrator.RunStoredCampaign(ctx, args[0])
			} else {
				summary, err = a.orchestrator.RunCampaign(ctx, flags.campaign())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "campaign %s: %d succeeded, %d failed (%d aborted), %d skipped of %d\n",
				summary.CampaignID, summary.Succeeded, summary.Failed, summary.Aborted, summary.Skipped, summary.Total)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func estimateCmd() *cobra.Command {
	var flags campaignFlags
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate how long a campaign would take without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			est, err := a.orchestrator.EstimateCampaign(flags.campaign())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), est.String())
			for accountID, n := range est.PerAccount {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\t%d items\n", accountID, n)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
