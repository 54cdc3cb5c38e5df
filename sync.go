package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/watchsync/internal/config"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile watched_by tags in Radarr with Plex watched state",
		Long: `Run one reconciliation pass.

Every Plex user's watched flag is read for each Radarr movie, across all
configured servers. A movie watched on any server gets the user's
watched_by tag; a tagged movie no server reports as watched loses it.

With --dry-run nothing is written to Radarr. The planned changes are
printed, grouped by user.`,
		Args: cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			if err := config.ValidateCatalog(resolvedCfg); err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			return nil
		},
		RunE: runSync,
	}

	cmd.Flags().Bool("dry-run", false, "report planned tag changes without applying them")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	logger := buildLogger(cfg, os.Stderr)

	ctx, cancel := shutdownContext(cmd.Context(), logger)
	defer cancel()

	runID := uuid.NewString()

	if cfg.Sync.DryRun {
		statusf(flagQuiet, "Dry run: no changes will be written to Radarr.\n")
	}

	sess, err := newSession(ctx, cfg, logger, true)
	if err != nil {
		return err
	}

	// A canceled run still returns what it did so far.
	report, err := sess.engine(runID).RunOnce(ctx)
	if report == nil {
		return err
	}

	if flagJSON {
		if jerr := printSyncJSON(os.Stdout, report); jerr != nil {
			return jerr
		}
	} else {
		printSyncText(os.Stdout, report)
	}

	return err
}
