package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"clipforge/internal/config"
	"clipforge/internal/coordinator"
	"clipforge/internal/daemon"
	"clipforge/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <recipe-id>",
		Short: "Execute a compilation run for a recipe now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipeID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || recipeID <= 0 {
				return fmt.Errorf("invalid recipe id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				logger, err := ctx.newLogger()
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}
				d, err := daemon.New(cfg, st, logger)
				if err != nil {
					return err
				}
				result, err := d.RunRecipe(cmd.Context(), recipeID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				switch result.Status {
				case coordinator.StatusDispatched:
					fmt.Fprintf(out, "Run %d dispatched: %d clip(s), encode job %s\n",
						result.RunID, len(result.Items), result.EncodeJobHandle)
				case coordinator.StatusSkipped:
					fmt.Fprintf(out, "Run skipped: %s\n", result.Reason)
				case coordinator.StatusFailed:
					fmt.Fprintf(out, "Run %d failed: %s\n", result.RunID, result.Reason)
				}
				return nil
			})
		},
	}
}
