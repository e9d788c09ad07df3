package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgov/internal/cli/output"
	"github.com/leapstack-labs/leapgov/internal/lineage"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

// NewLineageCommand creates the lineage command group.
func NewLineageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Record and query data lineage",
		Long: `Record transformations between entities and explore the resulting
lineage graph.

Each record links a source entity to a target entity with a relationship
type (derived_from, transformed_to, copied_from, aggregated_from,
filtered_from, joined_from, enriched_by) and optional column mappings.`,
	}
	cmd.AddCommand(
		newLineageTrackCommand(),
		newLineageShowCommand(),
		newLineagePathCommand(),
		newLineageColumnsCommand(),
		newLineageStatsCommand(),
	)
	return cmd
}

// TrackOptions holds options for lineage track.
type TrackOptions struct {
	Relationship  string
	SourceVersion string
	TargetVersion string
	SourceColumns []string
	TargetColumns []string
	Info          string
}

func newLineageTrackCommand() *cobra.Command {
	opts := &TrackOptions{}
	cmd := &cobra.Command{
		Use:   "track <source type:id> <target type:id>",
		Short: "Record a transformation from source to target",
		Example: `  leapgov lineage track dataset:raw_orders dataset:orders --type filtered_from
  leapgov lineage track dataset:orders report:revenue --type aggregated_from \
    --source-columns amount --target-columns total --info '{"job": "nightly"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := parseRef(args[0])
			if err != nil {
				return err
			}
			tgt, err := parseRef(args[1])
			if err != nil {
				return err
			}
			rel, err := core.ParseRelationshipType(opts.Relationship)
			if err != nil {
				return err
			}
			info, err := readDocument(cmd, opts.Info)
			if err != nil {
				return err
			}

			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := cmdCtx.Engine.Lineage().TrackTransformation(cmd.Context(), lineage.TrackRequest{
				Source:             src,
				SourceVersionID:    optionalString(opts.SourceVersion),
				Target:             tgt,
				TargetVersionID:    optionalString(opts.TargetVersion),
				RelationshipType:   rel,
				TransformationInfo: info,
				SourceColumns:      opts.SourceColumns,
				TargetColumns:      opts.TargetColumns,
			})
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(rec.ToMap(), func() error {
				r.Printf("Recorded %s -[%s]-> %s (%s)\n", rec.Source, rec.RelationshipType, rec.Target, rec.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Relationship, "type", "t", string(core.RelationshipDerivedFrom), "Relationship type")
	cmd.Flags().StringVar(&opts.SourceVersion, "source-version", "", "Source version id")
	cmd.Flags().StringVar(&opts.TargetVersion, "target-version", "", "Target version id")
	cmd.Flags().StringSliceVar(&opts.SourceColumns, "source-columns", nil, "Source columns (comma separated)")
	cmd.Flags().StringSliceVar(&opts.TargetColumns, "target-columns", nil, "Target columns (comma separated)")
	cmd.Flags().StringVar(&opts.Info, "info", "", "Transformation info as JSON/YAML, or @file")
	return cmd
}

func newLineageShowCommand() *cobra.Command {
	var (
		direction string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "show <type:id>",
		Short: "Show the direct lineage edges of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			dir, err := core.ParseDirection(direction)
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := cmdCtx.Engine.Lineage().GetLineageForEntity(cmd.Context(), ref, dir, limit)
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(result.ToMap(), func() error {
				r.Printf("Lineage for: %s\n\n", ref)
				if dir != core.DirectionDownstream {
					r.Printf("Upstream (%d):\n", len(result.Upstream))
					renderRecords(r, result.Upstream)
				}
				if dir != core.DirectionUpstream {
					r.Printf("Downstream (%d):\n", len(result.Downstream))
					renderRecords(r, result.Downstream)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&direction, "direction", string(core.DirectionBoth), "upstream, downstream or both")
	cmd.Flags().IntVar(&limit, "limit", lineage.DefaultLimit, "Maximum records per direction")
	return cmd
}

func newLineagePathCommand() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "path <type:id>",
		Short: "Show the full upstream and downstream lineage tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			path, err := cmdCtx.Engine.Lineage().GetFullLineagePath(cmd.Context(), ref, depth)
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(path.ToMap(), func() error {
				r.Printf("%s (max depth %d)\n", ref, path.MaxDepth)
				r.Printf("Upstream (%d):\n", len(path.Upstream))
				renderTree(r, path.Upstream, "  ")
				r.Printf("Downstream (%d):\n", len(path.Downstream))
				renderTree(r, path.Downstream, "  ")
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "Maximum depth (0 = configured default)")
	return cmd
}

func newLineageColumnsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "columns <type:id> <column>",
		Short: "Show lineage records touching one column of an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := cmdCtx.Engine.Lineage().GetColumnLineage(cmd.Context(), ref, args[1])
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(map[string]any{"records": toMaps(records)}, func() error {
				renderRecords(r, records)
				return nil
			})
		},
	}
}

func newLineageStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show lineage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := cmdCtx.Engine.Lineage().GetLineageStatistics(cmd.Context())
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(stats.ToMap(), func() error {
				r.KeyValues("Lineage Statistics", [][2]any{
					{"Records", output.Count(stats.TotalRecords)},
					{"By Relationship", output.Counts(stats.ByRelationshipType)},
					{"Distinct Entities", output.Count(stats.DistinctEntities)},
					{"Column-level Records", output.Count(stats.ColumnLevelRecords)},
				})
				rows := make([][]any, 0, len(stats.MostConnected))
				for _, c := range stats.MostConnected {
					rows = append(rows, []any{c.Entity, c.Connections})
				}
				r.Table([]string{"MOST CONNECTED", "CONNECTIONS"}, rows)
				return nil
			})
		},
	}
}

func renderRecords(r *output.Renderer, records []*core.LineageRecord) {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{
			rec.ID, rec.Source, rec.RelationshipType, rec.Target,
			columnMapping(rec.SourceColumns, rec.TargetColumns), rec.CreatedAt,
		})
	}
	r.Table([]string{"ID", "SOURCE", "RELATIONSHIP", "TARGET", "COLUMNS", "CREATED"}, rows)
}

func columnMapping(src, tgt []string) string {
	if len(src) == 0 && len(tgt) == 0 {
		return ""
	}
	return strings.Join(src, ",") + " -> " + strings.Join(tgt, ",")
}

func renderTree(r *output.Renderer, nodes []*lineage.PathNode, indent string) {
	for _, n := range nodes {
		r.Printf("%s%s [%s]\n", indent, n.Entity, n.RelationshipType)
		renderTree(r, n.Children, indent+"  ")
	}
}
