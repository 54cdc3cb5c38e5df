package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the Plex servers that answered and the users they expose",
		Long: `Connect to every configured Plex server and list its owner and the
accounts it shares with. These are the users sync reconciles tags for.
Radarr is not contacted.`,
		Args: cobra.NoArgs,
		RunE: runUsers,
	}
}

func runUsers(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	logger := buildLogger(cfg, os.Stderr)

	ctx, cancel := shutdownContext(cmd.Context(), logger)
	defer cancel()

	sess, err := newSession(ctx, cfg, logger, false)
	if err != nil {
		return err
	}

	disc, err := sess.engine("").Discover(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		return printUsersJSON(os.Stdout, disc)
	}

	printUsersText(os.Stdout, disc)

	return nil
}
