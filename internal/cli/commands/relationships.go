package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgov/internal/cli/output"
	"github.com/leapstack-labs/leapgov/internal/relationship"
)

// NewRelationshipsCommand creates the relationships command group.
func NewRelationshipsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "relationships",
		Aliases: []string{"rel"},
		Short:   "Explore entity relationships",
	}
	cmd.AddCommand(
		newRelationshipsMapCommand(),
		newRelationshipsGraphCommand(),
		newRelationshipsRelatedCommand(),
		newRelationshipsStatsCommand(),
	)
	return cmd
}

func newRelationshipsMapCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "map <type:id>",
		Short: "List the incoming and outgoing relationships of an entity",
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

			rels, err := cmdCtx.Engine.Relationships().MapEntityRelationships(cmd.Context(), ref)
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(rels.ToMap(), func() error {
				r.Printf("Incoming (%d):\n", len(rels.Incoming))
				renderRecords(r, rels.Incoming)
				r.Printf("Outgoing (%d):\n", len(rels.Outgoing))
				renderRecords(r, rels.Outgoing)
				return nil
			})
		},
	}
}

func newRelationshipsGraphCommand() *cobra.Command {
	var types []string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Build the relationship graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			g, err := cmdCtx.Engine.Relationships().BuildRelationshipGraph(cmd.Context(), relationship.GraphRequest{
				EntityTypes: parseEntityTypes(types),
			})
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(g.ToMap(), func() error {
				rows := make([][]any, 0, len(g.Edges))
				for _, e := range g.Edges {
					rows = append(rows, []any{e.Source, e.RelationshipType, e.Target})
				}
				r.Table([]string{"SOURCE", "RELATIONSHIP", "TARGET"}, rows)
				r.Printf("%d nodes, %d edges\n", len(g.Nodes), len(g.Edges))
				if len(g.Sources) > 0 {
					r.Printf("Sources: %s\n", strings.Join(g.Sources, ", "))
				}
				if len(g.Sinks) > 0 {
					r.Printf("Sinks: %s\n", strings.Join(g.Sinks, ", "))
				}
				if g.HasCycles {
					r.Warnf("cycle detected: %v", g.CyclePath)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&types, "types", nil, "Keep edges touching these entity types")
	return cmd
}

func newRelationshipsRelatedCommand() *cobra.Command {
	var types []string
	cmd := &cobra.Command{
		Use:   "related <type:id>",
		Short: "List the direct neighbours of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			relTypes, err := parseRelationshipTypes(types)
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			related, err := cmdCtx.Engine.Relationships().FindRelatedEntities(cmd.Context(), ref, relTypes)
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(map[string]any{"related": toMaps(related)}, func() error {
				rows := make([][]any, 0, len(related))
				for _, e := range related {
					rows = append(rows, []any{e.Entity, e.Direction, e.RelationshipTypes, e.RecordCount})
				}
				r.Table([]string{"ENTITY", "DIRECTION", "RELATIONSHIPS", "RECORDS"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&types, "relationship-types", nil, "Only follow these relationship types")
	return cmd
}

func newRelationshipsStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show relationship statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := cmdCtx.Engine.Relationships().GetRelationshipStatistics(cmd.Context())
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(stats.ToMap(), func() error {
				r.KeyValues("Relationship Statistics", [][2]any{
					{"Relationships", output.Count(stats.TotalRelationships)},
					{"By Type", output.Counts(stats.ByRelationshipType)},
					{"By Entity Pair", output.Counts(stats.ByEntityPair)},
				})
				return nil
			})
		},
	}
}
