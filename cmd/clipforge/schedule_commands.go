package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"clipforge/internal/config"
	"clipforge/internal/store"
)

func newScheduleCommand(ctx *commandContext) *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage recipe schedules",
	}
	scheduleCmd.AddCommand(newScheduleAddCommand(ctx))
	scheduleCmd.AddCommand(newScheduleListCommand(ctx))
	scheduleCmd.AddCommand(newScheduleToggleCommand(ctx, true))
	scheduleCmd.AddCommand(newScheduleToggleCommand(ctx, false))
	return scheduleCmd
}

func newScheduleAddCommand(ctx *commandContext) *cobra.Command {
	var (
		recipeID  int64
		schedType string
		timeOfDay string
		weekday   int
		monthDay  int
		timezone  string
		runAt     string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Attach a schedule to a recipe",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				sched := &store.Schedule{
					RecipeID:  recipeID,
					Type:      store.ScheduleType(schedType),
					TimeOfDay: timeOfDay,
					Weekday:   weekday,
					MonthDay:  monthDay,
					Timezone:  timezone,
					Enabled:   true,
				}
				if sched.Type == store.ScheduleOnce {
					if runAt == "" {
						return fmt.Errorf("one-shot schedules need --at")
					}
					at, err := time.Parse(time.RFC3339, runAt)
					if err != nil {
						return fmt.Errorf("invalid --at value %q (want RFC 3339): %w", runAt, err)
					}
					sched.RunAt = &at
				}

				created, err := st.CreateSchedule(cmd.Context(), sched)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created schedule %d (%s) for recipe %d\n",
					created.ID, created.Type, created.RecipeID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&recipeID, "recipe", 0, "Recipe identifier")
	cmd.Flags().StringVar(&schedType, "type", "daily", "Schedule type (once, daily, weekly, monthly)")
	cmd.Flags().StringVar(&timeOfDay, "time", "12:00", "Time of day, HH:MM in the schedule's timezone")
	cmd.Flags().IntVar(&weekday, "weekday", 0, "Weekday for weekly schedules (0=Sunday)")
	cmd.Flags().IntVar(&monthDay, "monthday", 1, "Day of month for monthly schedules")
	cmd.Flags().StringVar(&timezone, "tz", "UTC", "IANA timezone name")
	cmd.Flags().StringVar(&runAt, "at", "", "Run instant for one-shot schedules (RFC 3339)")
	_ = cmd.MarkFlagRequired("recipe")
	return cmd
}

func newScheduleListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				schedules, err := st.ListSchedules(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(schedules))
				for _, sched := range schedules {
					next := "-"
					if sched.NextTriggerAt != nil {
						next = sched.NextTriggerAt.Format("2006-01-02 15:04 MST")
					}
					rows = append(rows, []string{
						strconv.FormatInt(sched.ID, 10),
						strconv.FormatInt(sched.RecipeID, 10),
						string(sched.Type),
						describeSchedule(sched),
						yesNo(sched.Enabled),
						next,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Recipe", "Type", "When", "Enabled", "Next trigger"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newScheduleToggleCommand(ctx *commandContext, enable bool) *cobra.Command {
	use, short, verb := "disable <schedule-id>", "Disable a schedule", "disabled"
	if enable {
		use, short, verb = "enable <schedule-id>", "Enable a schedule", "enabled"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid schedule id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				if err := st.SetScheduleEnabled(cmd.Context(), id, enable); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schedule %d %s\n", id, verb)
				return nil
			})
		},
	}
}

func describeSchedule(sched *store.Schedule) string {
	switch sched.Type {
	case store.ScheduleOnce:
		if sched.RunAt != nil {
			return sched.RunAt.Format("2006-01-02 15:04 MST")
		}
		return "-"
	case store.ScheduleDaily:
		return fmt.Sprintf("daily at %s %s", sched.TimeOfDay, sched.Timezone)
	case store.ScheduleWeekly:
		return fmt.Sprintf("%s at %s %s", time.Weekday(sched.Weekday), sched.TimeOfDay, sched.Timezone)
	case store.ScheduleMonthly:
		return fmt.Sprintf("day %d at %s %s", sched.MonthDay, sched.TimeOfDay, sched.Timezone)
	default:
		return string(sched.Type)
	}
}
