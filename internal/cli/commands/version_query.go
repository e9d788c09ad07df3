package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgov/internal/cli/output"
	"github.com/leapstack-labs/leapgov/internal/version"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

func newVersionAtCommand() *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "at <type:id> <time>",
		Short: "Show the version of an entity that was current at a point in time",
		Example: `  leapgov version at document:42 2024-06-30T12:00:00Z
  leapgov version at document:42 2024-06-30`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			ts, err := parseTime(args[1])
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			v, err := cmdCtx.Engine.Query().QueryVersionAtTime(cmd.Context(), ref, branch, ts)
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			if v == nil {
				return r.Render(map[string]any{"version": nil}, func() error {
					r.Printf("No version of %s existed at %s\n", ref, ts.Format(time.RFC3339))
					return nil
				})
			}
			return renderVersion(r, v)
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch id (default: trunk)")
	return cmd
}

func newVersionCompareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <version-id-1> <version-id-2>",
		Short: "Diff two versions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			cmp, err := cmdCtx.Engine.Query().CompareVersions(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(cmp.ToMap(), func() error {
				r.KeyValues("Comparison", [][2]any{
					{"Version 1", cmp.Version1.ID},
					{"Version 2", cmp.Version2.ID},
					{"Similarity", cmp.SimilarityScore},
					{"Number Delta", cmp.NumberDelta},
					{"Time Delta", cmp.TimeDelta},
				})

				rows := make([][]any, 0)
				d := cmp.Differences
				for _, k := range sortedKeys(d.Added) {
					rows = append(rows, []any{"+", k, "", d.Added[k]})
				}
				for _, k := range sortedKeys(d.Removed) {
					rows = append(rows, []any{"-", k, d.Removed[k], ""})
				}
				for _, k := range sortedKeys(d.Modified) {
					rows = append(rows, []any{"~", k, d.Modified[k].Old, d.Modified[k].New})
				}
				r.Table([]string{"", "KEY", "OLD", "NEW"}, rows)
				return nil
			})
		},
	}
}

func newVersionSearchCommand() *cobra.Command {
	var (
		req        version.SearchRequest
		entityType string
		from, to   string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search versions across entities",
		Example: `  leapgov version search --type document --comment typo
  leapgov version search --created-by alice --from 2024-01-01 --to 2024-02-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if req.From, err = parseOptionalTime(from); err != nil {
				return err
			}
			if req.To, err = parseOptionalTime(to); err != nil {
				return err
			}
			req.EntityType = core.EntityType(entityType)

			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			page, err := cmdCtx.Engine.Query().SearchVersions(cmd.Context(), req)
			if err != nil {
				return err
			}
			return renderPage(cmdCtx.Renderer, page)
		},
	}
	cmd.Flags().StringVar(&entityType, "type", "", "Entity type")
	cmd.Flags().StringVar(&req.EntityID, "id", "", "Entity id")
	cmd.Flags().StringVar(&req.CreatedBy, "created-by", "", "Creator")
	cmd.Flags().StringVar(&from, "from", "", "Created at or after (RFC 3339)")
	cmd.Flags().StringVar(&to, "to", "", "Created at or before (RFC 3339)")
	cmd.Flags().StringVar(&req.CommentContains, "comment", "", "Case-insensitive comment substring")
	cmd.Flags().BoolVar(&req.IncludeArchived, "include-archived", false, "Include archived versions")
	cmd.Flags().IntVar(&req.Limit, "limit", version.DefaultHistoryLimit, "Maximum number of versions")
	cmd.Flags().IntVar(&req.Offset, "offset", 0, "Number of versions to skip")
	return cmd
}

func newVersionStatsCommand() *cobra.Command {
	var req version.StatisticsRequest
	var entityType string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show version store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			req.EntityType = core.EntityType(entityType)
			stats, err := cmdCtx.Engine.Query().GetVersionStatistics(cmd.Context(), req)
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(stats.ToMap(), func() error {
				r.KeyValues("Version Statistics", [][2]any{
					{"Total Versions", output.Count(stats.TotalVersions)},
					{"By Type", output.Counts(stats.ByVersionType)},
					{"By Status", output.Counts(stats.ByStatus)},
					{"By Entity Type", output.Counts(stats.ByEntityType)},
					{"Logical Size", output.Bytes(stats.LogicalBytes)},
					{"Stored Size", output.Bytes(stats.StoredBytes)},
					{"Recent Versions", output.Count(stats.RecentVersions)},
					{"Recent Since", stats.RecentSince},
					{"Tags", output.Count(stats.TotalTags)},
					{"Branches", output.Count(stats.TotalBranches)},
				})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&entityType, "type", "", "Restrict to one entity type")
	cmd.Flags().DurationVar(&req.RecentWindow, "window", version.DefaultRecentWindow, "Window for the recent-versions count")
	return cmd
}
