package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"clipforge/internal/config"
	"clipforge/internal/store"
)

var statusCaser = cases.Title(language.AmericanEnglish)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent compilation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				runs, err := st.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					completed := "-"
					if run.CompletedAt != nil {
						completed = run.CompletedAt.Format("2006-01-02 15:04")
					}
					rows = append(rows, []string{
						strconv.FormatInt(run.ID, 10),
						strconv.FormatInt(run.RecipeID, 10),
						statusCaser.String(string(run.Status)),
						run.OutputPath,
						formatBytes(run.OutputBytes),
						completed,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Run", "Recipe", "Status", "Output", "Size", "Completed"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Show recent dispatched jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				jobs, err := st.ListJobs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					claimed := "-"
					if job.ClaimedBy != "" {
						claimed = job.ClaimedBy
					}
					rows = append(rows, []string{
						job.Handle,
						string(job.Kind),
						job.Queue,
						statusCaser.String(string(job.Status)),
						strconv.Itoa(job.Progress) + "%",
						claimed,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Handle", "Kind", "Queue", "Status", "Progress", "Claimed by"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of jobs to show")
	return cmd
}

func formatBytes(n int64) string {
	switch {
	case n <= 0:
		return "-"
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KiB", float64(n)/1024)
	case n < 1024*1024*1024:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1024*1024*1024))
	}
}
