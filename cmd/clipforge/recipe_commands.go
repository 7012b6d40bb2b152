package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"clipforge/internal/config"
	"clipforge/internal/store"
)

func newRecipeCommand(ctx *commandContext) *cobra.Command {
	recipeCmd := &cobra.Command{
		Use:   "recipe",
		Short: "Manage compilation recipes",
	}
	recipeCmd.AddCommand(newRecipeAddCommand(ctx))
	recipeCmd.AddCommand(newRecipeListCommand(ctx))
	recipeCmd.AddCommand(newRecipeShowCommand(ctx))
	return recipeCmd
}

func newRecipeAddCommand(ctx *commandContext) *cobra.Command {
	var (
		ownerID         int64
		source          string
		channel         string
		windowDays      int
		clipLimit       int
		libraryFallback bool
		minDuration     float64
		maxDuration     float64
		includeTags     []string
		excludeTags     []string
		width           int
		height          int
		fps             int
		container       string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				params := store.SourceParams{Kind: store.SourceKind(source)}
				switch params.Kind {
				case store.SourceTwitch:
					params.Twitch = &store.TwitchSource{Channel: channel, WindowDays: windowDays}
				case store.SourceLibrary:
					params.Library = &store.LibraryRef{}
				}

				recipe, err := st.CreateRecipe(cmd.Context(), &store.Recipe{
					OwnerID:         ownerID,
					Name:            args[0],
					Source:          params,
					Output:          store.OutputSettings{Width: width, Height: height, FPS: fps, Container: container},
					ClipLimit:       clipLimit,
					LibraryFallback: libraryFallback,
					MinDuration:     minDuration,
					MaxDuration:     maxDuration,
					IncludeTags:     includeTags,
					ExcludeTags:     excludeTags,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created recipe %d (%s)\n", recipe.ID, recipe.Name)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&ownerID, "owner", 1, "Owner identifier")
	cmd.Flags().StringVar(&source, "source", "twitch", "Source kind (twitch or library)")
	cmd.Flags().StringVar(&channel, "channel", "", "Twitch channel to pull clips from")
	cmd.Flags().IntVar(&windowDays, "window", 7, "Lookback window in days")
	cmd.Flags().IntVar(&clipLimit, "limit", 0, "Maximum clips per compilation (0 = default)")
	cmd.Flags().BoolVar(&libraryFallback, "library-fallback", false, "Fall back to stored clips when the source is empty")
	cmd.Flags().Float64Var(&minDuration, "min-duration", 0, "Minimum clip duration in seconds")
	cmd.Flags().Float64Var(&maxDuration, "max-duration", 0, "Maximum clip duration in seconds")
	cmd.Flags().StringSliceVar(&includeTags, "include", nil, "Substrings a fallback clip must match")
	cmd.Flags().StringSliceVar(&excludeTags, "exclude", nil, "Substrings that exclude a fallback clip")
	cmd.Flags().IntVar(&width, "width", 0, "Output width (0 = default)")
	cmd.Flags().IntVar(&height, "height", 0, "Output height (0 = default)")
	cmd.Flags().IntVar(&fps, "fps", 0, "Output frame rate (0 = default)")
	cmd.Flags().StringVar(&container, "container", "", "Output container (default mp4)")
	return cmd
}

func newRecipeListCommand(ctx *commandContext) *cobra.Command {
	var ownerID int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recipes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				recipes, err := st.ListRecipes(cmd.Context(), ownerID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(recipes))
				for _, recipe := range recipes {
					lastRun := "never"
					if recipe.LastRunAt != nil {
						lastRun = recipe.LastRunAt.Format("2006-01-02 15:04")
					}
					rows = append(rows, []string{
						strconv.FormatInt(recipe.ID, 10),
						recipe.Name,
						string(recipe.Source.Kind),
						strconv.Itoa(recipe.ClipLimit),
						yesNo(recipe.LibraryFallback),
						lastRun,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Source", "Limit", "Fallback", "Last run"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&ownerID, "owner", 1, "Owner identifier")
	return cmd
}

func newRecipeShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <recipe-id>",
		Short: "Show one recipe in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipeID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || recipeID <= 0 {
				return fmt.Errorf("invalid recipe id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				recipe, err := st.GetRecipe(cmd.Context(), recipeID)
				if err != nil {
					return err
				}
				if recipe == nil {
					return fmt.Errorf("recipe %d not found", recipeID)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Recipe %d: %s\n", recipe.ID, recipe.Name)
				fmt.Fprintf(out, "  Owner:           %d\n", recipe.OwnerID)
				fmt.Fprintf(out, "  Source:          %s\n", describeSource(recipe.Source))
				fmt.Fprintf(out, "  Clip limit:      %d\n", recipe.ClipLimit)
				fmt.Fprintf(out, "  Library fallback: %s\n", yesNo(recipe.LibraryFallback))
				if recipe.MinDuration > 0 || recipe.MaxDuration > 0 {
					fmt.Fprintf(out, "  Duration bounds: %.0f-%.0f s\n", recipe.MinDuration, recipe.MaxDuration)
				}
				if len(recipe.IncludeTags) > 0 {
					fmt.Fprintf(out, "  Include:         %s\n", strings.Join(recipe.IncludeTags, ", "))
				}
				if len(recipe.ExcludeTags) > 0 {
					fmt.Fprintf(out, "  Exclude:         %s\n", strings.Join(recipe.ExcludeTags, ", "))
				}
				fmt.Fprintf(out, "  Output:          %dx%d @%dfps (%s)\n",
					recipe.Output.Width, recipe.Output.Height, recipe.Output.FPS, recipe.Output.Container)
				if recipe.LastRunAt != nil {
					fmt.Fprintf(out, "  Last run:        %s\n", recipe.LastRunAt.Format("2006-01-02 15:04:05 MST"))
				}
				return nil
			})
		},
	}
}

func describeSource(params store.SourceParams) string {
	switch params.Kind {
	case store.SourceTwitch:
		if params.Twitch != nil {
			return fmt.Sprintf("twitch (%s, last %d days)", params.Twitch.Channel, params.Twitch.WindowDays)
		}
		return "twitch"
	case store.SourceLibrary:
		return "library"
	default:
		return string(params.Kind)
	}
}
