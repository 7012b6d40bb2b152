package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clipforge/internal/config"
	"clipforge/internal/quota"
	"clipforge/internal/store"
)

func newTierCommand(ctx *commandContext) *cobra.Command {
	tierCmd := &cobra.Command{
		Use:   "tier",
		Short: "Manage per-owner tier limits",
	}
	tierCmd.AddCommand(newTierShowCommand(ctx))
	tierCmd.AddCommand(newTierSetCommand(ctx))
	return tierCmd
}

func newTierShowCommand(ctx *commandContext) *cobra.Command {
	var ownerID int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an owner's tier limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				limits, err := st.TierLimits(cmd.Context(), ownerID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Owner:            %d\n", ownerID)
				fmt.Fprintf(out, "Storage:          %s\n", formatLimitBytes(limits.StorageBytes))
				fmt.Fprintf(out, "Render seconds:   %s per month\n", formatLimit(limits.RenderSecondsPerM))
				fmt.Fprintf(out, "Schedules:        %s\n", formatLimit(limits.MaxSchedules))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&ownerID, "owner", 1, "Owner identifier")
	return cmd
}

func newTierSetCommand(ctx *commandContext) *cobra.Command {
	var (
		ownerID       int64
		storageBytes  int64
		renderSeconds int64
		maxSchedules  int64
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set an owner's tier limits (-1 means unlimited)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				limits := quota.Limits{
					StorageBytes:      storageBytes,
					RenderSecondsPerM: renderSeconds,
					MaxSchedules:      maxSchedules,
				}
				if err := st.SetTierLimits(cmd.Context(), ownerID, limits); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated tier limits for owner %d\n", ownerID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&ownerID, "owner", 1, "Owner identifier")
	cmd.Flags().Int64Var(&storageBytes, "storage-bytes", quota.Unlimited, "Storage budget in bytes")
	cmd.Flags().Int64Var(&renderSeconds, "render-seconds", quota.Unlimited, "Render seconds per month")
	cmd.Flags().Int64Var(&maxSchedules, "max-schedules", quota.Unlimited, "Enabled schedule ceiling")
	return cmd
}

func formatLimit(v int64) string {
	if v == quota.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", v)
}

func formatLimitBytes(v int64) string {
	if v == quota.Unlimited {
		return "unlimited"
	}
	return formatBytes(v)
}
