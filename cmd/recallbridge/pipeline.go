// Pipeline subcommands: the operator-facing outreach workflow, invoked in
// order as import → refresh → build-queue → create-touches → send, with
// stats/reset-errored as read/repair tools. Each command prints a one-line
// machine-greppable summary to stdout; structured logs go to stderr.
package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dentalops/recallbridge/internal/config"
	"github.com/dentalops/recallbridge/internal/importer"
	"github.com/dentalops/recallbridge/internal/lock"
	"github.com/dentalops/recallbridge/internal/services"
)

// campaignAndType resolves the campaign/touch-type pair used by the queue,
// touch, and send commands. The campaign defaults to the configured active
// campaign; the touch type defaults to the first-touch slot.
func campaignAndType(cfg config.Config, campaignFlag, typeFlag string) (string, string) {
	campaignID := campaignFlag
	if campaignID == "" {
		campaignID = cfg.Practice.ActiveCampaignID
	}
	touchType := typeFlag
	if touchType == "" {
		touchType = "T1"
	}
	return campaignID, touchType
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a patient export (CSV or XLSX)",
		Long: "Parses the practice-management export, resolves columns by header name,\n" +
			"merges rows onto existing patients (opt-out and complaint flags are\n" +
			"sticky), and replaces the patient table in one transaction.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			sum, err := importer.New(db, cfg.Practice).ImportFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "import run=%s parsed=%d inserts=%d updates=%d rows=%d\n",
				sum.RunID, sum.Parsed, sum.Inserts, sum.Updates, sum.Rows)
			return nil
		},
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Recompute derived patient fields",
		Long: "Re-derives the normalized phone (mobile > home > work > other), the SMS\n" +
			"contact flag, and the recall status for every patient.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			sum, err := importer.New(db, cfg.Practice).Refresh(cmd.Context())
			if err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refresh run=%s refreshed=%d with_phone=%d\n",
				sum.RunID, sum.Refreshed, sum.WithPhone)
			return nil
		},
	}
}

func newBuildQueueCmd() *cobra.Command {
	var campaignID, touchType string

	cmd := &cobra.Command{
		Use:   "build-queue",
		Short: "Rebuild the outreach eligibility queue",
		Long: "Evaluates every patient against the eligibility rules and atomically\n" +
			"replaces the queue for the campaign and touch type.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			camp, tt := campaignAndType(cfg, campaignID, touchType)
			sum, err := services.NewEligibilityService(db, cfg.Practice).BuildQueue(cmd.Context(), camp, tt)
			if err != nil {
				return fmt.Errorf("build queue: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue run=%s total=%d eligible=%d ineligible=%d\n",
				sum.RunID, sum.Total, sum.Eligible, sum.Ineligible)
			for reason, n := range sum.ByReason {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s=%d\n", reason, n)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&campaignID, "campaign", "", "campaign id (defaults to ACTIVE_CAMPAIGN_ID)")
	cmd.Flags().StringVar(&touchType, "touch-type", "", "touch type slot (default T1)")
	return cmd
}

func newCreateTouchesCmd() *cobra.Command {
	var campaignID, touchType string

	cmd := &cobra.Command{
		Use:   "create-touches",
		Short: "Materialize touches from the current queue",
		Long: "Creates (or refreshes) one touch per queue row. Touch ids are\n" +
			"deterministic, so re-running never duplicates a touch; completed\n" +
			"touches are left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			camp, tt := campaignAndType(cfg, campaignID, touchType)
			sum, err := services.NewTouchService(db, cfg.Practice).CreateTouches(cmd.Context(), camp, tt, cfg.DryRun())
			if err != nil {
				if errors.Is(err, services.ErrKillSwitchOn) {
					return fmt.Errorf("kill switch is ON; aborting (set KILL_SWITCH=OFF or MODE=DRY_RUN)")
				}
				return fmt.Errorf("create touches: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "touches run=%s queue_rows=%d created=%d updated=%d existing=%d ready=%d skipped=%d\n",
				sum.RunID, sum.QueueRows, sum.Created, sum.Updated, sum.Existing, sum.Ready, sum.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&campaignID, "campaign", "", "campaign id (defaults to ACTIVE_CAMPAIGN_ID)")
	cmd.Flags().StringVar(&touchType, "touch-type", "", "touch type slot (default T1)")
	return cmd
}

func newSendCmd() *cobra.Command {
	var campaignID, touchType string
	var limit int

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Claim READY touches and send them",
		Long: "Claims READY touches under the practice lock and delivers each one. In\n" +
			"DRY_RUN mode no network call is made and touches finish as WOULD_SEND;\n" +
			"in LIVE mode the provider is called for real.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			camp, tt := campaignAndType(cfg, campaignID, touchType)
			svc := services.NewSendService(db, lock.NewKeyed(), newSender(cfg), cfg)
			sum, err := svc.Run(cmd.Context(), camp, tt, limit, cfg.DryRun())
			if err != nil {
				switch {
				case errors.Is(err, services.ErrKillSwitchOn):
					return fmt.Errorf("kill switch is ON; aborting (set KILL_SWITCH=OFF or MODE=DRY_RUN)")
				case errors.Is(err, services.ErrLockBusy):
					return fmt.Errorf("another send run holds the practice lock; try again later")
				}
				return fmt.Errorf("send: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "send run=%s claimed=%d sent=%d would_send=%d skipped=%d errors=%d stuck=%d\n",
				sum.RunID, sum.Claimed, sum.Sent, sum.WouldSend, sum.Skipped, sum.Errors, sum.Stuck)
			return nil
		},
	}

	cmd.Flags().StringVar(&campaignID, "campaign", "", "campaign id (defaults to ACTIVE_CAMPAIGN_ID)")
	cmd.Flags().StringVar(&touchType, "touch-type", "", "touch type slot (default T1)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max touches to claim this run (0 = no limit)")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var campaignID, touchType string
	var check bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print corpus, queue, and touch counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			camp, tt := campaignAndType(cfg, campaignID, touchType)
			svc := services.NewStatsService(db, cfg.Practice, cfg.Invariants)
			st, err := svc.Compute(cmd.Context(), camp, tt)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "patients total=%d with_phone=%d opted_out=%d complaints=%d invalid_recall=%d\n",
				st.PatientsTotal, st.WithPhone, st.OptedOut, st.Complaints, st.InvalidRecall)
			fmt.Fprintf(out, "queue total=%d eligible=%d\n", st.QueueTotal, st.QueueEligible)
			for reason, n := range st.QueueByReason {
				fmt.Fprintf(out, "  %s=%d\n", reason, n)
			}
			for state, n := range st.TouchesByState {
				fmt.Fprintf(out, "touches %s=%d\n", state, n)
			}
			if check {
				if err := svc.AssertInvariants(cmd.Context(), uuid.NewString(), st); err != nil {
					return err
				}
				fmt.Fprintln(out, "invariants ok")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&campaignID, "campaign", "", "campaign id (defaults to ACTIVE_CAMPAIGN_ID)")
	cmd.Flags().StringVar(&touchType, "touch-type", "", "touch type slot (default T1)")
	cmd.Flags().BoolVar(&check, "check", false, "assert data-quality invariants and fail on breach")
	return cmd
}

func newResetErroredCmd() *cobra.Command {
	var campaignID, touchType string

	cmd := &cobra.Command{
		Use:   "reset-errored",
		Short: "Reset ERROR touches back to READY",
		Long: "Operator repair tool: moves every ERROR touch for the campaign back to\n" +
			"READY so the next send run retries them. Clears the recorded attempt\n" +
			"and error fields.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			camp, tt := campaignAndType(cfg, campaignID, touchType)
			n, err := services.NewStatsService(db, cfg.Practice, cfg.Invariants).ResetErrored(cmd.Context(), camp, tt)
			if err != nil {
				return fmt.Errorf("reset errored: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d touches to READY\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&campaignID, "campaign", "", "campaign id (defaults to ACTIVE_CAMPAIGN_ID)")
	cmd.Flags().StringVar(&touchType, "touch-type", "", "touch type slot (default T1)")
	return cmd
}
